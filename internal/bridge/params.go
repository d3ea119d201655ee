package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jscyril/soundbridge/api"
)

// ErrUnknownMethod is returned by Invoke for methods the module does not have
var ErrUnknownMethod = errors.New("unknown method")

// Params are decoded JSON arguments; numbers arrive as float64
type Params map[string]interface{}

// Invoke dispatches a named command with JSON parameters. Parameter errors
// are returned without touching the registry; cb receives the command's
// callback arguments, if it has any.
func (m *Module) Invoke(ctx context.Context, method string, params Params, cb Callback) error {
	switch method {
	case "getConstants":
		cb(m.Constants())
	case "prepare":
		source, err := validateStringParam(params, "fileName", method)
		if err != nil {
			return err
		}
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		m.Prepare(ctx, source, handle, cb)
	case "play":
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		m.Play(handle, cb)
	case "pause", "stop", "release":
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		switch method {
		case "pause":
			m.Pause(handle)
		case "stop":
			m.Stop(handle)
		default:
			m.Release(handle)
		}
	case "setVolume":
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		left, err := validateFloat64Param(params, "left", method, -math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return err
		}
		right, err := validateFloat64Param(params, "right", method, -math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return err
		}
		m.SetVolume(handle, left, right)
	case "setLooping":
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		looping, err := validateBoolParam(params, "looping", method)
		if err != nil {
			return err
		}
		m.SetLooping(handle, looping)
	case "setCurrentTime":
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		seconds, err := validateFloat64Param(params, "seconds", method, -math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return err
		}
		m.SetCurrentTime(handle, seconds)
	case "getCurrentTime":
		handle, err := validateHandleParam(params, method)
		if err != nil {
			return err
		}
		m.GetCurrentTime(handle, cb)
	case "enable":
		enabled, err := validateBoolParam(params, "enabled", method)
		if err != nil {
			return err
		}
		m.Enable(enabled)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return nil
}

// validateFloat64Param extracts and validates a float64 parameter from the params map
func validateFloat64Param(params Params, paramName, methodName string, min, max float64) (float64, error) {
	value, ok := params[paramName].(float64)
	if !ok {
		return 0, fmt.Errorf("%s: %s parameter must be a number, got %T", methodName, paramName, params[paramName])
	}
	if value < min || value > max {
		return 0, fmt.Errorf("%s: %s value %v out of range [%v to %v]", methodName, paramName, value, min, max)
	}
	return value, nil
}

// validateHandleParam extracts the integral session key
func validateHandleParam(params Params, methodName string) (api.Handle, error) {
	value, err := validateFloat64Param(params, "key", methodName, math.MinInt32, math.MaxInt32)
	if err != nil {
		return 0, err
	}
	if value != math.Trunc(value) {
		return 0, fmt.Errorf("%s: key value %v must be an integer", methodName, value)
	}
	return api.Handle(value), nil
}

func validateStringParam(params Params, paramName, methodName string) (string, error) {
	value, ok := params[paramName].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s: %s parameter must be a non-empty string, got %T", methodName, paramName, params[paramName])
	}
	return value, nil
}

func validateBoolParam(params Params, paramName, methodName string) (bool, error) {
	value, ok := params[paramName].(bool)
	if !ok {
		return false, fmt.Errorf("%s: %s parameter must be a boolean, got %T", methodName, paramName, params[paramName])
	}
	return value, nil
}
