package json

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/rollkit/ephemeral-counter/log"
)

type handler struct {
	srv    *service
	router *mux.Router
	codec  rpc.Codec
	logger log.Logger
}

func newHandler(s *service, codec rpc.Codec, logger log.Logger) *handler {
	router := mux.NewRouter()
	h := &handler{
		srv:    s,
		router: router,
		codec:  codec,
		logger: logger,
	}

	router.HandleFunc("/", h.serveJSONRPC)
	router.HandleFunc("/websocket", h.wsHandler)
	for name, method := range s.methods {
		if method.ws {
			continue
		}
		logger.Debug("registering method", "name", name)
		router.HandleFunc("/"+name, h.newHandler(method))
	}

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// serveJSONRPC serves HTTP request
func (h *handler) serveJSONRPC(w http.ResponseWriter, r *http.Request) {
	h.serveJSONRPCforWS(w, r, nil)
}

// serveJSONRPCforWS serves a JSON-RPC request, from HTTP or from a websocket
// connection when wsConn is set.
func (h *handler) serveJSONRPCforWS(w http.ResponseWriter, r *http.Request, wsConn *wsConn) {
	// Create a new codec request.
	codecReq := h.codec.NewRequest(r)
	// Get service method to be called.
	method, err := codecReq.Method()
	if err != nil {
		if e, ok := err.(*json2.Error); method == "" && ok && e.Message == "EOF" {
			// just serve empty page if request is empty
			return
		}
		codecReq.WriteError(w, http.StatusBadRequest, err)
		return
	}
	methodSpec, ok := h.srv.methods[method]
	if !ok {
		codecReq.WriteError(w, http.StatusOK, &json2.Error{Code: json2.E_NO_METHOD, Message: "method not found: " + method})
		return
	}

	args := reflect.New(methodSpec.argsType)
	if err := codecReq.ReadRequest(args.Interface()); err != nil {
		codecReq.WriteError(w, http.StatusBadRequest, err)
		return
	}

	var extra []reflect.Value
	if methodSpec.ws {
		extra = append(extra, reflect.ValueOf(wsConn))
	}
	result, err := methodSpec.call(r, args, extra...)

	w.Header().Set("x-content-type-options", "nosniff")
	if err != nil {
		codecReq.WriteError(w, http.StatusBadRequest, err)
		return
	}
	codecReq.WriteResponse(w, result)
}

// call invokes the service method and splits its (result, error) pair.
func (m *method) call(r *http.Request, args reflect.Value, extra ...reflect.Value) (interface{}, error) {
	rets := m.m.Call(append([]reflect.Value{reflect.ValueOf(r), args}, extra...))
	if err, _ := rets[1].Interface().(error); err != nil {
		return nil, err
	}
	return rets[0].Interface(), nil
}

// newHandler serves a method over HTTP GET. Every argument is a URI parameter
// named after its json tag.
func (h *handler) newHandler(methodSpec *method) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			h.encodeAndWriteResponse(w, nil, err, json2.E_PARSE)
			return
		}
		args := reflect.New(methodSpec.argsType)
		for i := 0; i < methodSpec.argsType.NumField(); i++ {
			name := methodSpec.argsType.Field(i).Tag.Get("json")
			if !values.Has(name) {
				h.encodeAndWriteResponse(w, nil, fmt.Errorf("missing param '%s'", name), json2.E_INVALID_REQ)
				return
			}
			if err := decodeParam(args.Elem().Field(i), values.Get(name)); err != nil {
				h.encodeAndWriteResponse(w, nil, fmt.Errorf("failed to parse param '%s': %w", name, err), json2.E_PARSE)
				return
			}
		}
		result, err := methodSpec.call(r, args)
		h.encodeAndWriteResponse(w, result, err, json2.E_INTERNAL)
	}
}

// decodeParam sets a string or uint64 field from its text, anything else is
// read as JSON.
func decodeParam(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
		return nil
	case reflect.Uint64:
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(v)
		return nil
	default:
		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	}
}

// encodeAndWriteResponse writes a JSON-RPC envelope with id -1. code is used
// only when err is set.
func (h *handler) encodeAndWriteResponse(w http.ResponseWriter, result interface{}, err error, code json2.ErrorCode) {
	w.Header().Set("x-content-type-options", "nosniff")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	resp := response{Version: "2.0", ID: []byte("-1")}
	if err != nil {
		resp.Error = &json2.Error{Code: code, Message: err.Error()}
	} else {
		resp.Result = result
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode RPC response", "error", err)
	}
}
