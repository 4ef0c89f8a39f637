package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmi/value"
	"github.com/openconfig/gnmic/pkg/api"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

// Placeholders expanded in gNMI paths
const (
	PortPlaceholder    = "{port}"
	CircuitPlaceholder = "{circuit}"
)

// DefaultGNMISections maps observed sections onto OpenConfig paths
var DefaultGNMISections = []GNMISection{
	{Name: "Interface", Path: "/interfaces/interface[name={port}]/config"},
	{Name: "Subinterfaces", Path: "/interfaces/interface[name={port}]/subinterfaces"},
}

// GNMISection is one observed section and the path that populates it
type GNMISection struct {
	Name string
	Path string
}

// ParseGNMISections reads "Section=/path" entries. An entry without a
// section name is stored under the last element of its path.
func ParseGNMISections(entries []string) ([]GNMISection, error) {
	if len(entries) == 0 {
		return DefaultGNMISections, nil
	}
	out := make([]GNMISection, 0, len(entries))
	for _, entry := range entries {
		name, path, ok := strings.Cut(entry, "=")
		if !ok {
			path = entry
			name = lastPathElem(entry)
		}
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if name == "" || !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("invalid gnmi path entry %q", entry)
		}
		out = append(out, GNMISection{Name: name, Path: path})
	}
	return out, nil
}

func lastPathElem(path string) string {
	path = strings.TrimRight(path, "/")
	depth := 0
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case ']':
			depth++
		case '[':
			depth--
		case '/':
			if depth == 0 {
				return path[i+1:]
			}
		}
	}
	return path
}

// gnmiTarget is the part of a gnmic target the client uses
type gnmiTarget interface {
	Get(ctx context.Context, req *gnmi.GetRequest) (*gnmi.GetResponse, error)
	Set(ctx context.Context, req *gnmi.SetRequest) (*gnmi.SetResponse, error)
	Close() error
}

// GNMIConfig holds the connection settings shared by every device
type GNMIConfig struct {
	Port       int
	Username   string
	Password   string
	Insecure   bool
	SkipVerify bool
	Encoding   string
	Timeout    time.Duration
	Sections   []GNMISection
}

// GNMIClient reads observed configuration with gNMI Get and issues
// commands as gNMI Set updates.
type GNMIClient struct {
	cfg     GNMIConfig
	connect func(ctx context.Context, device domain.Device) (gnmiTarget, error)
	log     *logrus.Entry
}

// NewGNMIClient creates a client; connections are opened per call
func NewGNMIClient(cfg GNMIConfig) *GNMIClient {
	if cfg.Port == 0 {
		cfg.Port = 57400
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "json_ietf"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = DefaultGNMISections
	}
	c := &GNMIClient{cfg: cfg, log: logging.For("gnmi")}
	c.connect = c.dialTarget
	return c
}

func (c *GNMIClient) dialTarget(ctx context.Context, device domain.Device) (gnmiTarget, error) {
	addr, err := deviceAddress(device, c.cfg.Port)
	if err != nil {
		return nil, err
	}
	opts := []api.TargetOption{
		api.Name(device.Ref()),
		api.Address(addr),
		api.Timeout(c.cfg.Timeout),
		api.Insecure(c.cfg.Insecure),
		api.SkipVerify(c.cfg.SkipVerify),
	}
	if c.cfg.Username != "" {
		opts = append(opts, api.Username(c.cfg.Username))
	}
	if c.cfg.Password != "" {
		opts = append(opts, api.Password(c.cfg.Password))
	}
	t, err := api.NewTarget(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gnmic target: %w", err)
	}
	if err := t.CreateGNMIClient(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return t, nil
}

// ObservedConfig implements service.ObservedSource
func (c *GNMIClient) ObservedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error) {
	t, err := c.connect(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateUnavailable, err)
	}
	defer t.Close()

	doc := []byte("{}")
	for _, section := range c.cfg.Sections {
		path := expandPath(section.Path, circuit, device)
		req, err := api.NewGetRequest(api.Path(path), api.Encoding(c.cfg.Encoding), api.DataType("config"))
		if err != nil {
			return nil, fmt.Errorf("build get request for %s: %w", path, err)
		}
		resp, err := t.Get(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: gnmi get %s: %v", domain.ErrStateUnavailable, path, err)
		}
		doc, err = mergeSection(doc, section.Name, resp.GetNotification())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateUnavailable, path, err)
		}
	}
	c.log.WithFields(logrus.Fields{"circuit": circuit.ID, "device": device.Ref()}).Debug("Fetched observed config")
	return domain.Document(doc), nil
}

// Execute sends the command as a single gNMI update carrying its parameters
func (c *GNMIClient) Execute(ctx context.Context, device domain.Device, name string, params map[string]any) (domain.CommandResult, error) {
	body, err := commandBody(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters for %s: %w", name, err)
	}
	t, err := c.connect(ctx, device)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	req, err := api.NewSetRequest(api.Update(api.Path(commandPath(name)), api.Value(json.RawMessage(body), c.cfg.Encoding)))
	if err != nil {
		return nil, fmt.Errorf("build set request for %s: %w", name, err)
	}
	resp, err := t.Set(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, name, err)
	}

	out, _ := sjson.SetBytes([]byte("{}"), "timestamp", resp.GetTimestamp())
	out, _ = sjson.SetBytes(out, "updates", len(resp.GetResponse()))
	return domain.CommandResult(out), nil
}

// commandPath is the gNMI path a named command is written to
func commandPath(name string) string {
	return fmt.Sprintf("/commands/command[name=%s]/input", name)
}

// commandBody renders parameters as a JSON object in key order
func commandBody(params map[string]any) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	body := "{}"
	for _, k := range keys {
		var err error
		body, err = sjson.Set(body, escapeKey(k), params[k])
		if err != nil {
			return "", err
		}
	}
	return body, nil
}

func expandPath(path string, circuit domain.Circuit, device domain.Device) string {
	return strings.NewReplacer(
		PortPlaceholder, device.HandoffPort,
		CircuitPlaceholder, circuit.ID,
	).Replace(path)
}

// mergeSection stores the update values of a Get response under section.
// A single update is stored as is; several become a list. No updates leaves
// the section out, which the normalizer reports as missing config.
func mergeSection(doc []byte, section string, notifications []*gnmi.Notification) ([]byte, error) {
	var values []json.RawMessage
	for _, n := range notifications {
		for _, u := range n.GetUpdate() {
			raw, err := typedValueJSON(u.GetVal())
			if err != nil {
				return nil, err
			}
			values = append(values, raw)
		}
	}

	switch len(values) {
	case 0:
		return doc, nil
	case 1:
		return sjson.SetRawBytes(doc, escapeKey(section), values[0])
	default:
		list, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		return sjson.SetRawBytes(doc, escapeKey(section), list)
	}
}

// typedValueJSON renders a gNMI value as JSON
func typedValueJSON(tv *gnmi.TypedValue) (json.RawMessage, error) {
	if tv == nil {
		return json.RawMessage("null"), nil
	}
	switch v := tv.GetValue().(type) {
	case *gnmi.TypedValue_JsonIetfVal:
		return json.RawMessage(v.JsonIetfVal), nil
	case *gnmi.TypedValue_JsonVal:
		return json.RawMessage(v.JsonVal), nil
	}
	scalar, err := value.ToScalar(tv)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(scalar)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("unsupported value %T", scalar), err)
	}
	return raw, nil
}

// escapeKey makes a literal key safe for sjson paths
func escapeKey(key string) string {
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(key)
}
