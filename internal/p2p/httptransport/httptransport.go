// Package httptransport implements internal/p2p.Transport as HTTP+JSON,
// satisfying spec.md §4.10's "framing is pluggable" requirement as an
// alternative to internal/p2p/tcp. It is grounded on the Peer RPC
// envelope of spec.md §6 ("request/response JSON objects with a type
// discriminator... {ok:true,data:...} or {ok:false,error:"<kind>"}"),
// routed with github.com/gorilla/mux the way the rest of the example
// pack's HTTP services route requests.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
	"github.com/kado-chain/kado/internal/ledgererr"
)

// envelope is the wire shape of spec.md §6's Peer RPC: a type
// discriminator plus either a data payload or an error kind.
type envelope struct {
	Type  string          `json:"type"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Transport is an HTTP+JSON implementation of internal/p2p.Transport.
type Transport struct {
	client *http.Client
}

// New returns a Transport using the given HTTP client (pass
// http.DefaultClient if the caller has no special needs).
func New(client *http.Client) *Transport {
	return &Transport{client: client}
}

func (t *Transport) post(ctx context.Context, peer, kind string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindPeerMalformed, err, "encode %s request", kind)
	}

	url := fmt.Sprintf("http://%s/rpc/%s", peer, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindPeerMalformed, err, "build %s request", kind)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindPeerUnavailable, err, "call %s on %s", kind, peer)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return ledgererr.Wrap(ledgererr.KindPeerMalformed, err, "decode %s envelope from %s", kind, peer)
	}
	if !env.OK {
		return ledgererr.New(ledgererr.Kind(env.Error), "%s on %s: %s", kind, peer, env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return ledgererr.Wrap(ledgererr.KindPeerMalformed, err, "decode %s payload from %s", kind, peer)
	}
	return nil
}

func (t *Transport) GetBlocks(ctx context.Context, peer string) ([]*block.Block, error) {
	var blocks []*block.Block
	if err := t.post(ctx, peer, "get_blocks", struct{}{}, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (t *Transport) GetUTXOs(ctx context.Context, peer string, addr string) ([]utxo.Entry, error) {
	var entries []utxo.Entry
	req := struct {
		Address string `json:"address"`
	}{Address: addr}
	if err := t.post(ctx, peer, "get_utxos", req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *Transport) BroadcastTx(ctx context.Context, peer string, tr *tx.Transaction) error {
	return t.post(ctx, peer, "submit_tx", tr, nil)
}

func (t *Transport) BroadcastBlock(ctx context.Context, peer string, b *block.Block) error {
	return t.post(ctx, peer, "submit_block", b, nil)
}

func (t *Transport) ExchangePeers(ctx context.Context, peer string) ([]string, error) {
	var addrs []string
	if err := t.post(ctx, peer, "get_peers", struct{}{}, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// Handler mirrors tcp.Handler for the server side of this transport.
type Handler interface {
	OnGetBlocks() []*block.Block
	OnGetUTXOs(addr string) []utxo.Entry
	OnTx(t *tx.Transaction) error
	OnBlock(b *block.Block) error
	OnAddr() []string
}

// Router builds the gorilla/mux router that serves h over the same
// five RPC kinds the client methods above call.
func Router(h Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/rpc/get_blocks", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, "get_blocks", h.OnGetBlocks())
	}).Methods(http.MethodPost)

	r.HandleFunc("/rpc/get_utxos", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeErr(w, "get_utxos", ledgererr.KindPeerMalformed)
			return
		}
		writeOK(w, "get_utxos", h.OnGetUTXOs(body.Address))
	}).Methods(http.MethodPost)

	r.HandleFunc("/rpc/submit_tx", func(w http.ResponseWriter, req *http.Request) {
		var t tx.Transaction
		if err := json.NewDecoder(req.Body).Decode(&t); err != nil {
			writeErr(w, "submit_tx", ledgererr.KindPeerMalformed)
			return
		}
		if err := h.OnTx(&t); err != nil {
			writeErr(w, "submit_tx", kindOf(err))
			return
		}
		writeOK(w, "submit_tx", nil)
	}).Methods(http.MethodPost)

	r.HandleFunc("/rpc/submit_block", func(w http.ResponseWriter, req *http.Request) {
		var b block.Block
		if err := json.NewDecoder(req.Body).Decode(&b); err != nil {
			writeErr(w, "submit_block", ledgererr.KindPeerMalformed)
			return
		}
		if err := h.OnBlock(&b); err != nil {
			writeErr(w, "submit_block", kindOf(err))
			return
		}
		writeOK(w, "submit_block", nil)
	}).Methods(http.MethodPost)

	r.HandleFunc("/rpc/get_peers", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, "get_peers", h.OnAddr())
	}).Methods(http.MethodPost)

	return r
}

func kindOf(err error) ledgererr.Kind {
	if kind, ok := ledgererr.KindOf(err); ok {
		return kind
	}
	return ledgererr.KindPeerMalformed
}

func writeOK(w http.ResponseWriter, kind string, data any) {
	encoded, err := json.Marshal(data)
	if err != nil {
		writeErr(w, kind, ledgererr.KindPeerMalformed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Type: kind, OK: true, Data: encoded})
}

func writeErr(w http.ResponseWriter, kind string, k ledgererr.Kind) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Type: kind, OK: false, Error: string(k)})
}
