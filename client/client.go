// Package client talks to a bridge node over HTTP: it resolves program
// identities, signs requests with a wallet key and reads the query endpoints.
package client

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"NftBridge/internal/api"
	"NftBridge/internal/derive"
)

// Default program names registered by the node.
const (
	DefaultSystemName     = "system"
	DefaultBridgeName     = "bridge"
	DefaultCollectionName = "collection"
)

// Names selects which registered programs the client targets.
type Names struct {
	System     string
	Bridge     string
	Collection string
}

// DefaultNames returns the names a node registers by default.
func DefaultNames() Names {
	return Names{System: DefaultSystemName, Bridge: DefaultBridgeName, Collection: DefaultCollectionName}
}

// Client connects to a bridge node via HTTP.
type Client struct {
	baseURL    string         // baseURL is the node API root (e.g. "http://127.0.0.1:8080")
	http       *http.Client   // http performs the calls
	system     derive.Address // system is the system program identity
	bridge     derive.Address // bridge is the bridge program identity
	collection derive.Address // collection is the collection program identity
}

// Status is the node status.
type Status struct {
	Height     uint64        `json:"height"`
	EscrowRoot string        `json:"escrowRoot"`
	Programs   []ProgramInfo `json:"programs"`
}

// ProgramInfo describes a registered program.
type ProgramInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Functions []string `json:"functions"`
}

// NewClient creates a client connected to a node with the default program names.
func NewClient(nodeAddr string) (*Client, error) {
	return NewClientWithNames(nodeAddr, DefaultNames())
}

// NewClientWithNames creates a client and resolves the program identities
// from the node's /status endpoint.
func NewClientWithNames(nodeAddr string, names Names) (*Client, error) {
	c := &Client{
		baseURL: normalizeURL(nodeAddr),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	status, err := c.Status()
	if err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	ids := make(map[string]derive.Address, len(status.Programs))
	for _, p := range status.Programs {
		id, err := derive.ParseAddress(p.ID)
		if err != nil {
			return nil, fmt.Errorf("program %s:\n%w", p.Name, err)
		}
		ids[p.Name] = id
	}

	for _, target := range []struct {
		name string
		dst  *derive.Address
	}{
		{names.System, &c.system},
		{names.Bridge, &c.bridge},
		{names.Collection, &c.collection},
	} {
		id, ok := ids[target.name]
		if !ok {
			return nil, fmt.Errorf("program %q is not registered on %s", target.name, c.baseURL)
		}
		*target.dst = id
	}

	return c, nil
}

// SystemID returns the system program identity.
func (c *Client) SystemID() derive.Address { return c.system }

// BridgeID returns the bridge program identity.
func (c *Client) BridgeID() derive.Address { return c.bridge }

// CollectionID returns the collection program identity.
func (c *Client) CollectionID() derive.Address { return c.collection }

// Status returns the node status.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := c.httpGet("/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Submit sends a pre-built request envelope.
func (c *Client) Submit(data []byte) (*api.ReceiptView, error) {
	return c.submitRequest(data)
}

// Receipt returns the receipt of an executed request.
func (c *Client) Receipt(hash [32]byte) (*api.ReceiptView, error) {
	var rv api.ReceiptView
	if err := c.httpGet("/tx/"+hex.EncodeToString(hash[:]), &rv); err != nil {
		return nil, err
	}
	return &rv, nil
}

// Account returns the account at addr.
func (c *Client) Account(addr derive.Address) (*api.AccountView, error) {
	var av api.AccountView
	if err := c.httpGet("/accounts/"+addr.String(), &av); err != nil {
		return nil, err
	}
	return &av, nil
}

// Custody returns the custody state of one foreign NFT.
func (c *Client) Custody(chain, contract string, assetID uint64) (*api.CustodyView, error) {
	q := url.Values{"chain": {chain}, "contract": {contract}, "id": {strconv.FormatUint(assetID, 10)}}

	var cv api.CustodyView
	if err := c.httpGet("/bridge/custody?"+q.Encode(), &cv); err != nil {
		return nil, err
	}
	return &cv, nil
}

// Mirror returns the mirror collection state of a foreign collection.
func (c *Client) Mirror(chain, contract string) (*api.MirrorView, error) {
	q := url.Values{"chain": {chain}, "contract": {contract}}

	var mv api.MirrorView
	if err := c.httpGet("/collection/mirror?"+q.Encode(), &mv); err != nil {
		return nil, err
	}
	return &mv, nil
}

// Item returns the mirror item of a foreign item id.
func (c *Client) Item(chain, contract string, assetID uint64) (*api.ItemView, error) {
	q := url.Values{"chain": {chain}, "contract": {contract}, "id": {strconv.FormatUint(assetID, 10)}}

	var iv api.ItemView
	if err := c.httpGet("/collection/item?"+q.Encode(), &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

// Snapshot downloads the node's store export and its hex checksum.
func (c *Client) Snapshot() ([]byte, string, error) {
	data, header, err := c.httpGetRaw("/snapshot")
	if err != nil {
		return nil, "", err
	}
	return data, header.Get("X-Snapshot-Checksum"), nil
}
