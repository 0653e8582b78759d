package output

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

// Message turns an error into the sentence shown to the user.
func Message(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, mcerrors.ErrAddress):
		return fmt.Sprintf("That does not look like a server address: %s", err)
	case errors.Is(err, mcerrors.ErrTimeout):
		return fmt.Sprintf("The server did not answer in time: %s", err)
	case errors.Is(err, mcerrors.ErrConnection):
		return fmt.Sprintf("Could not reach the server: %s", err)
	case errors.Is(err, mcerrors.ErrProtocol):
		return fmt.Sprintf("The server sent something that is not a valid status: %s", err)
	case errors.Is(err, mcerrors.ErrConfig):
		return fmt.Sprintf("Configuration problem: %s", err)
	default:
		return fmt.Sprintf("Error: %s", err)
	}
}

func RenderError(w io.Writer, err error) {
	fmt.Fprintln(w, newStyles(w).err.Render(Message(err)))
}
