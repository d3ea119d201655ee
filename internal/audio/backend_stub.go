//go:build !libmpv

package audio

import (
	"fmt"

	"go.uber.org/zap"

	playerrors "github.com/jscyril/soundbridge/pkg/errors"
)

func newMPVFactory(logger *zap.SugaredLogger) (Factory, error) {
	return nil, fmt.Errorf("%w: libmpv backend is not enabled; build with -tags libmpv", playerrors.ErrBackendUnavailable)
}
