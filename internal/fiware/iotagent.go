package fiware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// IoTAgent talks to the IoT Agent northbound API (groups and devices) and
// its JSON southbound endpoint (measures).
type IoTAgent struct {
	north    transport
	south    transport
	apiKey   string
	resource string
	pageSize int
}

// NewIoTAgent builds a client. northURL and southURL are the base URLs of
// the two ports, apiKey the key measures are sent with and resource the
// southbound path (usually /iot/json).
func NewIoTAgent(northURL, southURL, apiKey, resource string, opts Options) *IoTAgent {
	opts = opts.withDefaults()
	return &IoTAgent{
		north:    newTransport(northURL, opts),
		south:    newTransport(southURL, opts),
		apiKey:   apiKey,
		resource: resource,
		pageSize: opts.PageSize,
	}
}

type servicesPage struct {
	Count    *int           `json:"count"`
	Services []ServiceGroup `json:"services"`
}

type devicesPage struct {
	Count   *int     `json:"count"`
	Devices []Device `json:"devices"`
}

// ListServices returns every device group of the tenant.
func (a *IoTAgent) ListServices(ctx context.Context) ([]ServiceGroup, error) {
	var all []ServiceGroup
	for offset := 0; ; {
		var page servicesPage
		if _, err := a.north.do(ctx, http.MethodGet, "/iot/services", pageQuery(a.pageSize, offset), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Services...)
		if !morePages(len(all), len(page.Services), a.pageSize, countOf(page.Count)) {
			return all, nil
		}
		offset += len(page.Services)
	}
}

// CreateService registers one device group.
func (a *IoTAgent) CreateService(ctx context.Context, group ServiceGroup) error {
	body := struct {
		Services []ServiceGroup `json:"services"`
	}{Services: []ServiceGroup{group}}

	_, err := a.north.do(ctx, http.MethodPost, "/iot/services", nil, body, nil)
	return err
}

// ListDevices returns every device of the tenant in the agent's order.
func (a *IoTAgent) ListDevices(ctx context.Context) ([]Device, error) {
	var all []Device
	for offset := 0; ; {
		var page devicesPage
		if _, err := a.north.do(ctx, http.MethodGet, "/iot/devices", pageQuery(a.pageSize, offset), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Devices...)
		if !morePages(len(all), len(page.Devices), a.pageSize, countOf(page.Count)) {
			return all, nil
		}
		offset += len(page.Devices)
	}
}

// CreateDevice provisions one device.
func (a *IoTAgent) CreateDevice(ctx context.Context, device Device) error {
	body := struct {
		Devices []Device `json:"devices"`
	}{Devices: []Device{device}}

	_, err := a.north.do(ctx, http.MethodPost, "/iot/devices", nil, body, nil)
	return err
}

// DeleteDevice removes a device by id.
func (a *IoTAgent) DeleteDevice(ctx context.Context, deviceID string) error {
	_, err := a.north.do(ctx, http.MethodDelete, "/iot/devices/"+url.PathEscape(deviceID), nil, nil, nil)
	return err
}

// SendMeasure pushes one measure for deviceID through the southbound
// endpoint, authenticated by the agent's API key.
func (a *IoTAgent) SendMeasure(ctx context.Context, deviceID string, measure Measure) error {
	if deviceID == "" {
		return fmt.Errorf("fiware: measure requires a device id")
	}
	q := url.Values{}
	q.Set("k", a.apiKey)
	q.Set("i", deviceID)

	_, err := a.south.do(ctx, http.MethodPost, a.resource, q, measure, nil)
	return err
}

func countOf(c *int) int {
	if c == nil {
		return -1
	}
	return *c
}
