package ui

import (
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// quietPresenter drains messages and prints nothing.
type quietPresenter struct {
	stats stats.Reader
}

func (p *quietPresenter) Run(msgs <-chan event.Message) error {
	for range msgs {
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
