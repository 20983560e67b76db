//go:build wasm

package sdk

import (
	"errors"
	"fmt"
	"syscall/js"
)

// saveFile hands the data to the browser: a Blob is wrapped in an object
// URL, a temporary anchor is clicked, and the URL is revoked.
func saveFile(_ string, filename, mimeType string, data []byte) (result *DownloadResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("browser download: %v", r)
		}
	}()

	document := js.Global().Get("document")
	if document.IsUndefined() {
		return nil, errors.New("browser download: no document")
	}

	array := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(array, data)

	options := js.Global().Get("Object").New()
	options.Set("type", mimeType)
	blob := js.Global().Get("Blob").New(js.Global().Get("Array").New(array), options)

	urlAPI := js.Global().Get("URL")
	objectURL := urlAPI.Call("createObjectURL", blob)
	defer urlAPI.Call("revokeObjectURL", objectURL)

	anchor := document.Call("createElement", "a")
	anchor.Set("href", objectURL)
	anchor.Set("download", filename)
	anchor.Get("style").Set("display", "none")

	body := document.Get("body")
	body.Call("appendChild", anchor)
	anchor.Call("click")
	body.Call("removeChild", anchor)

	return &DownloadResult{
		Filename: filename,
		MIMEType: mimeType,
		Size:     int64(len(data)),
	}, nil
}
