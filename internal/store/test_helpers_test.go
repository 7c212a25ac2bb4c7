package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/setcode/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testImage(name string, version int64, seq int64) ir.CodeImage {
	src := []byte(name + "@" + string(rune('0'+version)))
	return ir.CodeImage{
		Hash:     ir.HashImage(src),
		Manifest: ir.Manifest{Name: name, Version: version, Messages: []ir.MessageSig{{Name: "get", Args: []ir.NamedArg{}}}},
		Source:   src,
		Seq:      seq,
	}
}

// putTestInstance registers img and creates an instance running it.
func putTestInstance(t *testing.T, s *Store, id string, img ir.CodeImage, state ir.Object) ir.Instance {
	t.Helper()
	ctx := context.Background()

	_, err := s.PutImage(ctx, img)
	require.NoError(t, err)

	inst := ir.Instance{ID: id, CodeHash: img.Hash, Owner: "alice", State: state, Seq: img.Seq + 1}
	require.NoError(t, s.CreateInstance(ctx, inst))
	return inst
}

func testCall(instanceID, message string, seq int64, code ir.CodeHash, outcome string) (ir.Call, ir.Receipt) {
	call := ir.Call{
		ID:         ir.MustCallID(instanceID, message, ir.Object{}, seq),
		InstanceID: instanceID,
		Message:    message,
		Args:       ir.Object{},
		Seq:        seq,
		Caller:     ir.Caller{Identity: "alice", Permissions: []string{"upgrade"}},
		CodeHash:   code,
	}
	receiptID, err := ir.ReceiptID(call.ID, outcome, ir.Object{}, code, seq+1)
	if err != nil {
		panic(err)
	}
	return call, ir.Receipt{
		ID:       receiptID,
		CallID:   call.ID,
		Outcome:  outcome,
		Result:   ir.Object{},
		CodeHash: code,
		Seq:      seq + 1,
	}
}
