package profiling

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler(t *testing.T) {
	server := httptest.NewServer(Handler())
	defer server.Close()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	response, err := client.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("Get: %+v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusSeeOther {
		t.Fatalf("Get /: got status %d, want %d", response.StatusCode, http.StatusSeeOther)
	}

	response, err = client.Get(server.URL + "/debug/pprof/")
	if err != nil {
		t.Fatalf("Get: %+v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("Get /debug/pprof/: got status %d, want %d", response.StatusCode, http.StatusOK)
	}
}
