package exchange

import (
	"log/slog"

	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/errors"
)

// Compose folds the ordered exchange list into one pipeline IO. The
// fold runs right-to-left: each factory receives the IO produced by the
// stage after it as forward, and the last stage's forward is terminal.
// Compose must run exactly once per client.
//
// A nil terminal is a configuration error: without it, operations
// unresolved by earlier exchanges would hang.
func Compose(
	client Reexecuter,
	channel *debug.Channel,
	logger *slog.Logger,
	exchanges []Named,
	terminal IO,
) (IO, error) {
	if terminal == nil {
		return nil, errors.WrapInvalid(
			errors.ErrNoTransport, "exchange", "Compose", "terminal validation")
	}
	if logger == nil {
		logger = slog.Default()
	}

	forward := terminal
	for i := len(exchanges) - 1; i >= 0; i-- {
		ex := exchanges[i]
		if ex.Factory == nil {
			return nil, errors.WrapInvalid(
				errors.ErrInvalidConfig, "exchange", "Compose",
				"factory validation for "+ex.Name)
		}
		forward = ex.Factory(Input{
			Client:        client,
			Forward:       forward,
			DispatchDebug: channel.ForSource(ex.Name),
			Logger:        logger.With("exchange", ex.Name),
		})
	}

	return forward, nil
}
