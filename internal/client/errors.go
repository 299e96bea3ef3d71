package client

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// PlaceError is a rejected or failed placement as seen by the client.
type PlaceError struct {
	Status     int
	Kind       pixel.Kind
	Message    string
	RetryAfter time.Duration
}

func (e *PlaceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("place pixel: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("place pixel: %d %s: %s", e.Status, e.Kind, e.Message)
}

// Is matches the pixel sentinel for e's kind.
func (e *PlaceError) Is(target error) bool {
	switch e.Kind {
	case pixel.KindInvalidArgument:
		return target == pixel.ErrInvalidArgument
	case pixel.KindUnauthenticated:
		return target == pixel.ErrUnauthenticated
	case pixel.KindRateLimited:
		return target == pixel.ErrRateLimited
	case pixel.KindStoreUnavailable:
		return target == pixel.ErrStoreUnavailable
	}
	return false
}

// UserMessage is a short explanation suitable for display.
func (e *PlaceError) UserMessage() string {
	switch e.Kind {
	case pixel.KindRateLimited:
		secs := int((e.RetryAfter + time.Second - 1) / time.Second)
		return "You can place another pixel in " + strconv.Itoa(secs) + "s."
	case pixel.KindInvalidArgument:
		return "That position or color is not allowed."
	case pixel.KindUnauthenticated:
		return "Sign in to place pixels."
	case pixel.KindStoreUnavailable:
		return "The canvas is busy. Try again shortly."
	default:
		return "Something went wrong placing your pixel."
	}
}
