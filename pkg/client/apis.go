package client

import (
	"encoding/json"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/hxstat/pkg/config"
	"github.com/charlie0129/hxstat/pkg/status"
)

func (c *Client) GetStatus() (*status.Report, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var r status.Report
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}

	return &r, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return parseStringResponse(ret)
}

// Reconnect forces the daemon to reopen the headset connection and returns
// the resulting connection state.
func (c *Client) Reconnect() (string, error) {
	ret, err := c.Post("/reconnect", "")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to reconnect")
	}
	return parseStringResponse(ret)
}

func (c *Client) SetReconnectOnStale(enabled bool) (string, error) {
	ret, err := c.Put("/reconnect-on-stale", strconv.FormatBool(enabled))
	if err != nil {
		return "", err
	}
	return parseStringResponse(ret)
}

func parseStringResponse(resp string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(resp), &s); err != nil {
		return "", pkgerrors.Errorf("unexpected response: %s", resp)
	}
	return s, nil
}
