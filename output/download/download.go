// Package download provides the download node, which asks connected editors
// to save the message payload as a file.
package download

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "download"

// Download is the per-instance behavior.
type Download struct {
	node     component.Node
	filename string
	mimeType string
}

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	props := n.Config()
	return &Download{
		node:     n,
		filename: config.GetString(props, "filename", "download.txt"),
		mimeType: config.GetString(props, "mimeType", ""),
	}, nil
}

// OnInput emits a download event. msg.filename overrides the configured
// name. Strings are sent as text, byte slices as base64 and anything else
// as indented JSON.
func (d *Download) OnInput(_ context.Context, msg message.Msg) error {
	out := component.DownloadOutput{
		Filename: config.GetString(msg, "filename", d.filename),
		MimeType: d.mimeType,
	}

	switch v := msg.Payload().(type) {
	case nil:
		return errors.WrapInvalid(fmt.Errorf("%w: empty payload", errors.ErrInvalidData),
			"download", "OnInput", "encode payload")
	case string:
		out.Content = v
	case []byte:
		out.Content = base64.StdEncoding.EncodeToString(v)
		out.Encoding = "base64"
		if out.MimeType == "" {
			out.MimeType = "application/octet-stream"
		}
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.WrapInvalid(err, "download", "OnInput", "encode payload")
		}
		out.Content = string(data)
		if out.MimeType == "" {
			out.MimeType = "application/json"
		}
	}

	d.node.Download(out)
	return nil
}

// Register adds the download type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryOutput,
		Description: "Saves the payload as a file in the editor",
		Inputs:      1,
		Defaults:    map[string]any{"filename": "download.txt", "mimeType": ""},
		Factory:     New,
	})
}
