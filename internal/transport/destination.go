package transport

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteDestination copies body into the file at destination, creating parent
// directories as needed, and reports progress to ls. ev is the event
// template for the transfer; its Length should already be set.
//
// It fires TransferStarted before copying and TransferCompleted after a
// successful copy. On error it fires TransferFailed and returns the error;
// any partially written file is left for the caller to remove.
func WriteDestination(destination string, body io.Reader, ev Event, ls *Listeners) (int64, error) {
	fail := func(err error) (int64, error) {
		failed := ev
		failed.Type = TransferFailed
		failed.Err = err
		ls.Fire(failed)
		return 0, err
	}

	if dir := filepath.Dir(destination); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fail(fmt.Errorf("creating directory %s: %w", dir, err))
		}
	}

	f, err := os.Create(destination)
	if err != nil {
		return fail(fmt.Errorf("creating %s: %w", destination, err))
	}

	started := ev
	started.Type = TransferStarted
	ls.Fire(started)

	pw := &ProgressWriter{Writer: f, Event: ev, Listeners: ls}
	if _, err := io.Copy(pw, body); err != nil {
		f.Close()
		return fail(fmt.Errorf("writing %s: %w", destination, err))
	}
	if err := f.Close(); err != nil {
		return fail(fmt.Errorf("closing %s: %w", destination, err))
	}

	completed := ev
	completed.Type = TransferCompleted
	completed.Transferred = pw.Written()
	ls.Fire(completed)

	return pw.Written(), nil
}
