package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalDeliversInOrder(t *testing.T) {
	n := New()
	var got []string

	n.Subscribe(func(f Flags) { got = append(got, "first:"+f.String()) })
	n.Subscribe(func(f Flags) { got = append(got, "second:"+f.String()) })

	n.Signal(KeySequenceChanged | ActiveDatasetChanged)

	assert.Equal(t, []string{
		"first:KeySequence|ActiveDataset",
		"second:KeySequence|ActiveDataset",
	}, got)
}

func TestSignalZeroIsNoop(t *testing.T) {
	n := New()
	called := false
	n.Subscribe(func(Flags) { called = true })

	n.Signal(0)
	assert.False(t, called)

	var nilNotifier *Notifier
	nilNotifier.Signal(KeySequenceChanged)
}

func TestFlags(t *testing.T) {
	f := PendingDatasetChanged | NetworkDataChanged

	assert.True(t, f.Has(PendingDatasetChanged))
	assert.False(t, f.Has(PendingDatasetChanged|RoleChanged))
	assert.True(t, f.Any(PendingDatasetChanged|RoleChanged))
	assert.Equal(t, "none", Flags(0).String())
}
