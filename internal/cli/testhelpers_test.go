package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/fmueller/voxserve/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	return runApp(t, newAppState(), args)
}

func runApp(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func stubApp(engine whisper.Engine) *appState {
	app := newAppState()
	app.engineFn = func(context.Context) (whisper.Engine, error) {
		return engine, nil
	}
	return app
}
