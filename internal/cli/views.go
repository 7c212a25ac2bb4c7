package cli

import (
	"github.com/roach88/setcode/internal/engine"
	"github.com/roach88/setcode/internal/ir"
)

// ImageView is the printed form of a code image.
type ImageView struct {
	Hash        ir.CodeHash `json:"hash"`
	CID         string      `json:"cid"`
	Name        string      `json:"name"`
	Version     int64       `json:"version"`
	Upgradeable bool        `json:"upgradeable"`
	Messages    []string    `json:"messages"`
	Seq         int64       `json:"seq"`
}

func newImageView(img ir.CodeImage) ImageView {
	msgs := make([]string, len(img.Manifest.Messages))
	for i, sig := range img.Manifest.Messages {
		msgs[i] = sig.Name
	}
	return ImageView{
		Hash:        img.Hash,
		CID:         img.Hash.CID().String(),
		Name:        img.Manifest.Name,
		Version:     img.Manifest.Version,
		Upgradeable: img.Manifest.Upgradeable,
		Messages:    msgs,
		Seq:         img.Seq,
	}
}

// InstanceView is the printed form of an instance and the image it runs.
type InstanceView struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	CodeHash    ir.CodeHash `json:"code_hash"`
	Image       string      `json:"image"`
	Upgradeable bool        `json:"upgradeable"`
	State       ir.Object   `json:"state"`
	Seq         int64       `json:"seq"`
}

func newInstanceView(inst ir.Instance, img ir.CodeImage) InstanceView {
	return InstanceView{
		ID:          inst.ID,
		Owner:       inst.Owner,
		CodeHash:    inst.CodeHash,
		Image:       img.Manifest.Key(),
		Upgradeable: img.Manifest.Upgradeable,
		State:       inst.State,
		Seq:         inst.Seq,
	}
}

// CallView is the printed form of a call and its receipt.
type CallView struct {
	Seq         int64       `json:"seq"`
	InstanceID  string      `json:"instance_id"`
	Message     string      `json:"message"`
	Args        ir.Object   `json:"args"`
	Caller      string      `json:"caller"`
	Permissions []string    `json:"permissions"`
	Outcome     string      `json:"outcome"`
	Result      ir.Object   `json:"result"`
	Error       string      `json:"error,omitempty"`
	CodeBefore  ir.CodeHash `json:"code_before"`
	CodeAfter   ir.CodeHash `json:"code_after"`
}

func newCallView(res engine.Result) CallView {
	return CallView{
		Seq:         res.Call.Seq,
		InstanceID:  res.Call.InstanceID,
		Message:     res.Call.Message,
		Args:        res.Call.Args,
		Caller:      res.Call.Caller.Identity,
		Permissions: res.Call.Caller.Permissions,
		Outcome:     res.Receipt.Outcome,
		Result:      res.Receipt.Result,
		Error:       res.Receipt.Error,
		CodeBefore:  res.Call.CodeHash,
		CodeAfter:   res.Receipt.CodeHash,
	}
}

// Upgraded reports whether the call moved the code pointer.
func (v CallView) Upgraded() bool {
	return v.CodeBefore != v.CodeAfter
}
