package bridge

import (
	"encoding/base64"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// imageDataURLPrefix precedes the base64 PNG returned by CachedImage.
const imageDataURLPrefix = "data:image/png;base64,"

// PostScreencap requests a new screenshot and returns the request id.
func (s *Service) PostScreencap(id string) (int64, error) {
	var reqID int64
	err := s.registry.With(id, func(rt *instance.Runtime) error {
		if err := precondition(rt.Controller() != 0, id, "controller not connected"); err != nil {
			return err
		}
		var err error
		reqID, err = s.engine.ControllerPostScreencap(rt.Controller())
		if err != nil {
			return err
		}
		if reqID == native.InvalidID {
			return errors.NewBridgeError("failed to post screencap", errors.ErrRequestPost).
				WithInstanceID(id).
				WithCall("MaaControllerPostScreencap")
		}
		return nil
	})
	return reqID, err
}

// CachedImage returns the last screenshot as a PNG data URL.
func (s *Service) CachedImage(id string) (string, error) {
	var data []byte
	err := s.registry.View(id, func(rt *instance.Runtime) error {
		if err := precondition(rt.Controller() != 0, id, "controller not connected"); err != nil {
			return err
		}
		var err error
		data, err = s.engine.ControllerCachedImage(rt.Controller())
		if err != nil {
			return errors.NewBridgeError("failed to get cached image", err).
				WithInstanceID(id).
				WithCall("MaaControllerCachedImage")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.NewBridgeError("no image data available", errors.ErrNativeCall).WithInstanceID(id)
	}
	return imageDataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}
