// Package domoticz implements the hub collaborator: the HTTP/JSON query and
// command API, and the device store backing the controllers' output devices.
package domoticz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"casa-control/internal/domain"
)

const lastUpdateLayout = "2006-01-02 15:04:05"

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(address string, port int, username, password string) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", address, port),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithURL is used by tests to point the client at a fake hub.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type queryResponse struct {
	Status string       `json:"status"`
	Result []wireDevice `json:"result"`
}

type wireDevice struct {
	Idx         string   `json:"idx"`
	Name        string   `json:"Name"`
	Status      string   `json:"Status"`
	Temp        *float64 `json:"Temp"`
	LastUpdate  string   `json:"LastUpdate"`
	HaveTimeout bool     `json:"HaveTimeout"`
	SetPoint    string   `json:"SetPoint"`
	Data        string   `json:"Data"`
	SValue      string   `json:"sValue"`
	Level       int      `json:"Level"`
}

// QueryDevices fetches every used device matching the filter in one call.
// A response whose status is not "OK" is treated as absent.
func (c *Client) QueryDevices(ctx context.Context, filter string) ([]domain.HubDevice, error) {
	resp, err := c.call(ctx, url.Values{
		"type":   {"devices"},
		"filter": {filter},
		"used":   {"true"},
		"order":  {"Name"},
	})
	if err != nil {
		return nil, err
	}

	devices := make([]domain.HubDevice, 0, len(resp.Result))
	for _, w := range resp.Result {
		idx, err := strconv.Atoi(w.Idx)
		if err != nil {
			continue
		}
		d := domain.HubDevice{
			Idx:      idx,
			Name:     w.Name,
			Status:   w.Status,
			TimedOut: w.HaveTimeout,
		}
		if w.Temp != nil {
			d.Temp = *w.Temp
			d.HasTemp = true
		}
		if t, err := time.ParseInLocation(lastUpdateLayout, w.LastUpdate, time.Local); err == nil {
			d.LastUpdate = t
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// DeviceSetpoint reads one device's current setpoint. Older hub versions
// report it under different fields, so SetPoint, Data and sValue are checked
// in that order.
func (c *Client) DeviceSetpoint(ctx context.Context, idx int) (float64, error) {
	w, err := c.getDevice(ctx, idx)
	if err != nil {
		return 0, err
	}
	for _, raw := range []string{w.SetPoint, w.Data, w.SValue} {
		if raw == "" {
			continue
		}
		// Data may carry a unit suffix ("21.0 C")
		field := strings.Fields(raw)[0]
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("device %d reports no parsable setpoint", idx)
}

// SetSetpoint writes a valve target.
func (c *Client) SetSetpoint(ctx context.Context, idx int, value float64) error {
	_, err := c.call(ctx, url.Values{
		"type":     {"command"},
		"param":    {"setsetpoint"},
		"idx":      {strconv.Itoa(idx)},
		"setpoint": {strconv.FormatFloat(value, 'f', -1, 64)},
	})
	return err
}

// UpdateDevice pushes an nValue/sValue pair to a hub device.
func (c *Client) UpdateDevice(ctx context.Context, idx, nvalue int, svalue string) error {
	_, err := c.call(ctx, url.Values{
		"type":   {"command"},
		"param":  {"udevice"},
		"idx":    {strconv.Itoa(idx)},
		"nvalue": {strconv.Itoa(nvalue)},
		"svalue": {svalue},
	})
	return err
}

// DeviceState reads one device's current state, mapped onto the nValue and
// selector-level sValue pair the controllers work with.
func (c *Client) DeviceState(ctx context.Context, idx int) (domain.DeviceState, error) {
	w, err := c.getDevice(ctx, idx)
	if err != nil {
		return domain.DeviceState{}, err
	}
	st := domain.DeviceState{SValue: w.SValue}
	if w.Status == "On" || (w.Level > 0 && w.Status != "Off") {
		st.NValue = 1
	}
	if st.SValue == "" && w.Level > 0 {
		st.SValue = strconv.Itoa(w.Level)
	}
	return st, nil
}

func (c *Client) getDevice(ctx context.Context, idx int) (wireDevice, error) {
	resp, err := c.call(ctx, url.Values{
		"type":  {"command"},
		"param": {"getdevices"},
		"rid":   {strconv.Itoa(idx)},
	})
	if err != nil {
		return wireDevice{}, err
	}
	if len(resp.Result) == 0 {
		return wireDevice{}, fmt.Errorf("device %d not found", idx)
	}
	return resp.Result[0], nil
}

func (c *Client) call(ctx context.Context, params url.Values) (*queryResponse, error) {
	u := c.baseURL + "/json.htm?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub returned HTTP %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing hub response: %w", err)
	}
	if out.Status != "OK" {
		return nil, fmt.Errorf("hub returned status %q", out.Status)
	}
	return &out, nil
}
