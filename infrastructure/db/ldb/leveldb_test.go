package ldb

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"testing"
)

func prepareDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, teardownFunc func()) {
	// Create a temp db to run tests against
	path, err := ioutil.TempDir("", testName)
	if err != nil {
		t.Fatalf("%s: TempDir unexpectedly "+
			"failed: %s", testName, err)
	}
	ldb, err = NewLevelDB(path)
	if err != nil {
		t.Fatalf("%s: NewLevelDB unexpectedly "+
			"failed: %s", testName, err)
	}
	teardownFunc = func() {
		err = ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly "+
				"failed: %s", testName, err)
		}
		os.RemoveAll(path)
	}
	return ldb, teardownFunc
}

func TestLevelDBSanity(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBSanity")
	defer teardownFunc()

	key := []byte("key")
	_, err := ldb.Get(key)
	if !IsNotFoundError(err) {
		t.Fatalf("TestLevelDBSanity: Get of a missing key: want ErrNotFound, got %v", err)
	}

	putData := []byte("Hello world!")
	err = ldb.Put(key, putData)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Put returned unexpected error: %s", err)
	}
	exists, err := ldb.Has(key)
	if err != nil || !exists {
		t.Fatalf("TestLevelDBSanity: Has: got (%t, %v), want (true, nil)", exists, err)
	}
	getData, err := ldb.Get(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Get returned unexpected error: %s", err)
	}
	if !bytes.Equal(getData, putData) {
		t.Fatalf("TestLevelDBSanity: Get returned wrong data. "+
			"Want: %s, got: %s", string(putData), string(getData))
	}

	err = ldb.Delete(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Delete returned unexpected error: %s", err)
	}
	exists, err = ldb.Has(key)
	if err != nil || exists {
		t.Fatalf("TestLevelDBSanity: Has after Delete: got (%t, %v), want (false, nil)", exists, err)
	}
}

func TestBatchAndForEach(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestBatchAndForEach")
	defer teardownFunc()

	bucket := MakeBucket([]byte("bucket"))
	other := MakeBucket([]byte("other"))
	batch := &Batch{}
	for i := 0; i < 10; i++ {
		batch.Put(bucket.Key([]byte(fmt.Sprintf("key%d", i))), []byte(fmt.Sprintf("value%d", i)))
	}
	batch.Put(other.Key([]byte("key")), []byte("value"))
	batch.Delete(bucket.Key([]byte("key3")))
	if batch.Len() != 12 {
		t.Fatalf("TestBatchAndForEach: batch length: got %d, want 12", batch.Len())
	}
	err := ldb.Write(batch)
	if err != nil {
		t.Fatalf("TestBatchAndForEach: Write returned unexpected error: %s", err)
	}

	var keys []string
	err = ldb.ForEach(bucket.Path(), func(key []byte, value []byte) (bool, error) {
		keys = append(keys, string(bucket.Suffix(key)))
		return len(keys) < 5, nil
	})
	if err != nil {
		t.Fatalf("TestBatchAndForEach: ForEach returned unexpected error: %s", err)
	}
	expectedKeys := []string{"key0", "key1", "key2", "key4", "key5"}
	if !reflect.DeepEqual(keys, expectedKeys) {
		t.Fatalf("TestBatchAndForEach: ForEach visited %v, want %v", keys, expectedKeys)
	}

	lastKey, lastValue, err := ldb.Last(bucket.Path())
	if err != nil {
		t.Fatalf("TestBatchAndForEach: Last returned unexpected error: %s", err)
	}
	if string(bucket.Suffix(lastKey)) != "key9" || string(lastValue) != "value9" {
		t.Fatalf("TestBatchAndForEach: Last: got %s=%s, want key9=value9", lastKey, lastValue)
	}
	_, _, err = ldb.Last(MakeBucket([]byte("empty")).Path())
	if !IsNotFoundError(err) {
		t.Fatalf("TestBatchAndForEach: Last of an empty bucket: want ErrNotFound, got %v", err)
	}
}

func TestBucketPath(t *testing.T) {
	tests := []struct {
		bucketByteSlices [][]byte
		expectedPath     []byte
	}{
		{
			bucketByteSlices: [][]byte{[]byte("hello")},
			expectedPath:     []byte("hello/"),
		},
		{
			bucketByteSlices: [][]byte{[]byte("hello"), []byte("world")},
			expectedPath:     []byte("hello/world/"),
		},
	}

	for _, test := range tests {
		// Build a result using the MakeBucket function alone
		resultKey := MakeBucket(test.bucketByteSlices...).Path()
		if !reflect.DeepEqual(resultKey, test.expectedPath) {
			t.Errorf("TestBucketPath: got wrong path using MakeBucket. "+
				"Want: %s, got: %s", string(test.expectedPath), string(resultKey))
		}

		// Build a result using sub-Bucket calls
		bucket := MakeBucket()
		for _, bucketBytes := range test.bucketByteSlices {
			bucket = bucket.Bucket(bucketBytes)
		}
		resultKey = bucket.Path()
		if !reflect.DeepEqual(resultKey, test.expectedPath) {
			t.Errorf("TestBucketPath: got wrong path using sub-Bucket "+
				"calls. Want: %s, got: %s", string(test.expectedPath), string(resultKey))
		}
	}
}
