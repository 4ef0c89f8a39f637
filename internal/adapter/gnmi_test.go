package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"circuitsync/internal/domain"
)

// fakeTarget answers Get requests per path and records Set requests
type fakeTarget struct {
	responses map[string][]*gnmi.Notification
	getErr    error
	gets      []*gnmi.GetRequest
	sets      []*gnmi.SetRequest
	closed    int
}

func (f *fakeTarget) Get(_ context.Context, req *gnmi.GetRequest) (*gnmi.GetResponse, error) {
	f.gets = append(f.gets, req)
	if f.getErr != nil {
		return nil, f.getErr
	}
	elems := req.GetPath()[0].GetElem()
	return &gnmi.GetResponse{Notification: f.responses[elems[len(elems)-1].GetName()]}, nil
}

func (f *fakeTarget) Set(_ context.Context, req *gnmi.SetRequest) (*gnmi.SetResponse, error) {
	f.sets = append(f.sets, req)
	return &gnmi.SetResponse{
		Timestamp: 42,
		Response:  []*gnmi.UpdateResult{{Op: gnmi.UpdateResult_UPDATE}},
	}, nil
}

func (f *fakeTarget) Close() error {
	f.closed++
	return nil
}

func jsonUpdate(raw string) *gnmi.Notification {
	return &gnmi.Notification{Update: []*gnmi.Update{{
		Val: &gnmi.TypedValue{Value: &gnmi.TypedValue_JsonIetfVal{JsonIetfVal: []byte(raw)}},
	}}}
}

func newFakeClient(target *fakeTarget, sections []GNMISection) *GNMIClient {
	c := NewGNMIClient(GNMIConfig{Sections: sections})
	c.connect = func(context.Context, domain.Device) (gnmiTarget, error) {
		return target, nil
	}
	return c
}

func TestParseGNMISections(t *testing.T) {
	sections, err := ParseGNMISections(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGNMISections, sections)

	sections, err = ParseGNMISections([]string{
		"FRE=/flows/flow[port={port}]/config",
		"/interfaces/interface[name={port}]/state",
	})
	require.NoError(t, err)
	assert.Equal(t, []GNMISection{
		{Name: "FRE", Path: "/flows/flow[port={port}]/config"},
		{Name: "state", Path: "/interfaces/interface[name={port}]/state"},
	}, sections)

	_, err = ParseGNMISections([]string{"FRE=flows"})
	assert.Error(t, err)
}

func TestLastPathElem(t *testing.T) {
	assert.Equal(t, "interface[name=eth/1]", lastPathElem("/interfaces/interface[name=eth/1]"))
	assert.Equal(t, "config", lastPathElem("/interfaces/interface[name=eth/1]/config/"))
	assert.Equal(t, "config", lastPathElem("config"))
}

func TestGNMIObservedConfig(t *testing.T) {
	target := &fakeTarget{responses: map[string][]*gnmi.Notification{
		"config": {jsonUpdate(`{"description": "21.L1XX.006991..TWCC", "mtu": 9000}`)},
		"vlans": {
			{Update: []*gnmi.Update{
				{Val: &gnmi.TypedValue{Value: &gnmi.TypedValue_UintVal{UintVal: 100}}},
				{Val: &gnmi.TypedValue{Value: &gnmi.TypedValue_UintVal{UintVal: 200}}},
			}},
		},
	}}
	c := newFakeClient(target, []GNMISection{
		{Name: "Interface", Path: "/interfaces/interface[name={port}]/config"},
		{Name: "Vlans", Path: "/interfaces/interface[name={port}]/vlans"},
		{Name: "Empty", Path: "/interfaces/interface[name={port}]/empty"},
	})

	doc, err := c.ObservedConfig(context.Background(), testCircuit, testDevice)
	require.NoError(t, err)
	assert.Equal(t, "21.L1XX.006991..TWCC", gjson.GetBytes(doc, "Interface.description").String())
	assert.Equal(t, int64(9000), gjson.GetBytes(doc, "Interface.mtu").Int())
	assert.JSONEq(t, "[100, 200]", gjson.GetBytes(doc, "Vlans").Raw)
	assert.False(t, gjson.GetBytes(doc, "Empty").Exists(), "no updates leaves the section out")
	assert.Equal(t, 1, target.closed)

	require.Len(t, target.gets, 3)
	elem := target.gets[0].GetPath()[0].GetElem()[1]
	assert.Equal(t, "interface", elem.GetName())
	assert.Equal(t, "ETH-1-1-1", elem.GetKey()["name"])
	assert.Equal(t, gnmi.Encoding_JSON_IETF, target.gets[0].GetEncoding())
}

func TestGNMIObservedConfigErrors(t *testing.T) {
	target := &fakeTarget{getErr: errors.New("rpc error: unavailable")}
	c := newFakeClient(target, nil)
	_, err := c.ObservedConfig(context.Background(), testCircuit, testDevice)
	assert.ErrorIs(t, err, domain.ErrStateUnavailable)

	c.connect = func(context.Context, domain.Device) (gnmiTarget, error) {
		return nil, errors.New("connection refused")
	}
	_, err = c.ObservedConfig(context.Background(), testCircuit, testDevice)
	assert.ErrorIs(t, err, domain.ErrStateUnavailable)
}

func TestGNMIExecute(t *testing.T) {
	target := &fakeTarget{}
	c := newFakeClient(target, nil)

	result, err := c.Execute(context.Background(), testDevice, "remediation.json", map[string]any{
		"port":    "eth-1-1-1",
		"flow_id": "flow-1-1-1-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Get("timestamp").Int())
	assert.Equal(t, int64(1), result.Get("updates").Int())

	require.Len(t, target.sets, 1)
	updates := target.sets[0].GetUpdate()
	require.Len(t, updates, 1)
	elems := updates[0].GetPath().GetElem()
	require.Len(t, elems, 3)
	assert.Equal(t, "remediation.json", elems[1].GetKey()["name"])
	assert.Equal(t, 1, target.closed)
}

func TestCommandBody(t *testing.T) {
	body, err := commandBody(map[string]any{
		"port":           "eth-1-1-1",
		"cir":            1000000.0,
		"circuit-name":   "21.L1XX.006991..TWCC",
		"client.version": "x",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"cir": 1000000,
		"circuit-name": "21.L1XX.006991..TWCC",
		"client.version": "x",
		"port": "eth-1-1-1"
	}`, body)
}

func TestTypedValueJSON(t *testing.T) {
	tests := []struct {
		name string
		in   *gnmi.TypedValue
		want string
	}{
		{"nil", nil, "null"},
		{"json", &gnmi.TypedValue{Value: &gnmi.TypedValue_JsonVal{JsonVal: []byte(`{"a":1}`)}}, `{"a":1}`},
		{"string", &gnmi.TypedValue{Value: &gnmi.TypedValue_StringVal{StringVal: "up"}}, `"up"`},
		{"bool", &gnmi.TypedValue{Value: &gnmi.TypedValue_BoolVal{BoolVal: true}}, `true`},
		{"int", &gnmi.TypedValue{Value: &gnmi.TypedValue_IntVal{IntVal: -3}}, `-3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := typedValueJSON(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}
