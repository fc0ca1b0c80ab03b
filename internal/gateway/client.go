package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/huin/goupnp/soap"
	"github.com/icholy/digest"
)

const maxBodySize = 1 << 20

// Client talks TR-064 to a FRITZ!Box. The device descriptions and the
// service descriptions are fetched on first use and cached. A failed
// description load is reported again for descriptionBackoff before the
// router is contacted anew.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	logger  logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	desc    *description
	descErr error
	retryAt time.Time
	types   map[string]serviceTypes
}

var _ Gateway = (*Client)(nil)

func New(cfg Config, log logger.Logger, opts ...Option) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.User != "" || cfg.Password != "" {
		transport = &digest.Transport{
			Username:  cfg.User,
			Password:  cfg.Password,
			Transport: http.DefaultTransport,
		}
	}

	c := &Client{
		cfg:     cfg,
		baseURL: "http://" + net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: log,
		now:    time.Now,
		types:  make(map[string]serviceTypes),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Connect loads the device descriptions. Calling it is optional; every other
// method loads them on demand.
func (c *Client) Connect(ctx context.Context) error {
	desc, err := c.description(ctx)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("address", c.cfg.Address).
		Str("model", desc.ModelName).
		Str("firmware", desc.SystemVersion).
		Int("services", len(desc.Services)).
		Msg("Connected to FRITZ!Box")

	return nil
}

func (c *Client) Call(ctx context.Context, serviceName, action string, args map[string]any) (Answer, error) {
	errFactory := errors.New()

	desc, err := c.description(ctx)
	if err != nil {
		return nil, err
	}

	svc, ok := desc.Services[serviceName]
	if !ok {
		return nil, errFactory.WithData(ErrUnknownService, serviceName)
	}

	types, err := c.serviceTypes(ctx, svc)
	if err != nil {
		return nil, err
	}

	outTypes, ok := types[action]
	if !ok {
		return nil, errFactory.WithData(ErrUnknownAction, serviceName+"."+action)
	}

	raw, err := c.invoke(ctx, svc, action, args)
	if err != nil {
		return nil, err
	}

	answer := make(Answer, len(raw))
	for name, value := range raw {
		answer[name] = convert(outTypes[name], value)
	}

	return answer, nil
}

func (c *Client) HostEntry(ctx context.Context, index int) (HostEntry, error) {
	answer, err := c.Call(ctx, "Hosts1", "GetGenericHostEntry", map[string]any{"NewIndex": index})
	if err != nil {
		var fault *FaultError
		if errors.As(err, &fault) && fault.IsIndexFault() {
			return HostEntry{}, ErrEndOfList
		}
		return HostEntry{}, err
	}

	return HostEntry{
		Index:         index,
		IPAddress:     asString(answer["NewIPAddress"]),
		MACAddress:    asString(answer["NewMACAddress"]),
		HostName:      asString(answer["NewHostName"]),
		InterfaceType: asString(answer["NewInterfaceType"]),
		Active:        asBool(answer["NewActive"]),
	}, nil
}

// FirmwareVersion returns the systemVersion of the TR-064 description. It is
// empty when the router does not publish one.
func (c *Client) FirmwareVersion(ctx context.Context) (string, error) {
	desc, err := c.description(ctx)
	if err != nil {
		return "", err
	}

	return desc.SystemVersion, nil
}

func (c *Client) description(ctx context.Context) (*description, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.desc != nil {
		return c.desc, nil
	}
	if c.descErr != nil && c.now().Before(c.retryAt) {
		return nil, c.descErr
	}

	desc, err := c.loadDescription(ctx)
	if err != nil {
		c.descErr = err
		c.retryAt = c.now().Add(descriptionBackoff)
		return nil, err
	}

	c.desc, c.descErr = desc, nil
	c.logger.Debug().
		Str("model", desc.ModelName).
		Int("services", len(desc.Services)).
		Msg("Loaded device description")

	return desc, nil
}

func (c *Client) loadDescription(ctx context.Context) (*description, error) {
	errFactory := errors.New()

	body, loc, err := c.fetch(ctx, tr64DescriptionPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrDescriptionFailed, err)
	}
	root, err := parseRoot(body, loc)
	if err != nil {
		return nil, errFactory.Wrap(ErrDescriptionFailed, err)
	}

	desc := &description{
		ModelName:     root.Device.ModelName,
		SystemVersion: parseSystemVersion(body),
		Services:      make(map[string]service),
	}
	addServices(root, desc.Services)

	// The IGD description is absent when UPnP status reporting is switched
	// off on the router.
	body, loc, err = c.fetch(ctx, igdDescriptionPath)
	switch {
	case isNotFound(err):
		c.logger.Debug().Msg("Router publishes no IGD description")
	case err != nil:
		return nil, errFactory.Wrap(ErrDescriptionFailed, err)
	default:
		igd, err := parseRoot(body, loc)
		if err != nil {
			return nil, errFactory.Wrap(ErrDescriptionFailed, err)
		}
		addServices(igd, desc.Services)
	}

	if len(desc.Services) == 0 {
		return nil, errFactory.WithData(ErrDescriptionFailed, "no services in device description")
	}

	return desc, nil
}

func (c *Client) serviceTypes(ctx context.Context, svc service) (serviceTypes, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if types, ok := c.types[svc.Name]; ok {
		return types, nil
	}

	body, err := c.get(ctx, svc.SCPDURL.String())
	if err != nil {
		return nil, errors.New().Wrap(ErrSCPDFailed, err)
	}

	types, err := parseSCPD(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	c.types[svc.Name] = types

	return types, nil
}

func (c *Client) invoke(ctx context.Context, svc service, action string, args map[string]any) (map[string]string, error) {
	errFactory := errors.New()

	in, err := soapArgs(args)
	if err != nil {
		return nil, errFactory.Wrap(ErrEndpointFailed, err)
	}

	client := soap.NewSOAPClient(svc.ControlURL)
	client.HTTPClient = *c.http

	var out responseArgs
	if err := client.PerformActionCtx(ctx, svc.ServiceType, action, in, &out); err != nil {
		var fault *soap.SOAPFaultError
		if errors.As(err, &fault) {
			return nil, errFactory.Wrap(ErrFault, faultFromSOAP(fault))
		}
		return nil, errFactory.Wrap(ErrEndpointFailed, err)
	}

	return out, nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, *url.URL, error) {
	loc, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, nil, err
	}

	body, err := c.get(ctx, loc.String())
	if err != nil {
		return nil, nil, err
	}

	return body, loc, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, text: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	return body, nil
}

func isNotFound(err error) bool {
	var status *statusError
	return errors.As(err, &status) && status.status == http.StatusNotFound
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}
