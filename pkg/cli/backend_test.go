package cli

import (
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestBackendCloseReleasesEveryClient(t *testing.T) {
	var closed []string
	closer := func(name string, err error) func() error {
		return func() error {
			closed = append(closed, name)
			return err
		}
	}

	b := &backend{closers: []func() error{
		closer("firestore", nil),
		closer("storage", goerr.New("already closed")),
	}}
	b.Close()

	// a failing closer does not stop the rest; clients close in reverse order
	gt.A(t, closed).Length(2)
	gt.Equal(t, closed[0], "storage")
	gt.Equal(t, closed[1], "firestore")
}
