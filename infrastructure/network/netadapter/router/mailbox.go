package router

import "github.com/slpdexdb/slpdexd/app/appmessage"

// mailboxItem is anything the dispatch goroutine processes. Items are
// processed one at a time, in the order they were posted.
type mailboxItem interface {
	process(r *Router)
}

type startItem struct{}

func (startItem) process(r *Router) {
	if r.gatekeeper == nil {
		return
	}
	err := r.gatekeeper.Start()
	if err != nil {
		r.Fail(err)
	}
}

type incomingFrameItem struct {
	envelope *appmessage.MessageEnvelope
}

func (item incomingFrameItem) process(r *Router) {
	r.onFrameDecoded(item.envelope)
}

type sendItem struct {
	message appmessage.Message
}

func (item sendItem) process(r *Router) {
	r.sendMessage(item.message)
}

type subscribeItem struct {
	command    appmessage.MessageCommand
	subscriber Subscriber
}

func (item subscribeItem) process(r *Router) {
	r.addSubscription(item.command, item.subscriber)
}

type taskItem struct {
	task func() error
}

func (item taskItem) process(r *Router) {
	if r.State().IsTerminal() {
		return
	}
	err := item.task()
	if err != nil {
		r.Fail(err)
	}
}
