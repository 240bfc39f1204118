package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/query"
	"github.com/koustreak/ExprDB/internal/replicate"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"dataset_id": s.exec.Catalog().DatasetID(),
	})
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exec.Catalog().Describe())
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := s.decode(w, r, &q); err != nil {
		s.fail(w, r, err)
		return
	}
	offset, count, err := window(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format != "" && format != "typed" && format != "text" {
		s.fail(w, r, errs.Newf(errs.ErrKindInvalidInput, "unknown format %q (want typed or text)", format))
		return
	}
	total := false
	if v := r.URL.Query().Get("total"); v != "" {
		if total, err = strconv.ParseBool(v); err != nil {
			s.fail(w, r, errs.Wrap(errs.ErrKindInvalidInput, "invalid total", err))
			return
		}
	}

	var td *query.TableData
	switch {
	case count != nil:
		td, err = s.exec.Execute(r.Context(), q, offset, *count)
	case offset != 0:
		err = errs.New(errs.ErrKindInvalidInput, "offset requires count")
	default:
		td, err = s.exec.ExecuteAll(r.Context(), q)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if total {
		n, err := s.exec.Count(r.Context(), q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("X-Total-Count", strconv.FormatInt(n, 10))
	}

	if format == "text" {
		writeJSON(w, http.StatusOK, td.Text())
		return
	}
	writeJSON(w, http.StatusOK, td)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := s.decode(w, r, &q); err != nil {
		s.fail(w, r, err)
		return
	}

	sink := &lazyCSV{w: w}
	err := s.exec.Export(r.Context(), sink, q)
	switch {
	case err == nil:
		sink.start()
	case sink.started:
		// Too late for a status; the client sees a truncated body.
		s.log.ErrorWith("export interrupted", err, map[string]interface{}{
			"path": r.URL.Path,
		})
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) replicates(w http.ResponseWriter, r *http.Request) {
	var req replicate.Request
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	groups, err := replicate.Series(r.Context(), s.exec, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// decode reads one JSON document into v, rejecting unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Wrap(errs.ErrKindResourceLimit, "request body too large", err)
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err)
	}
	if dec.More() {
		return errs.New(errs.ErrKindInvalidInput, "request body holds more than one document")
	}
	return nil
}

// window reads offset and count. A missing count means no limit.
func window(r *http.Request) (int, *int, error) {
	params := r.URL.Query()
	offset := 0
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid offset", err)
		}
		offset = n
	}
	if v := params.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid count", err)
		}
		return offset, &n, nil
	}
	return offset, nil, nil
}

// fail logs err and answers with its status and a null body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	kind := errs.KindOf(err)
	fields := map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
		"kind":   kind.String(),
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Column != "" {
		fields["column"] = e.Table + "." + e.Column
	}
	s.log.ErrorWith("request failed", err, fields)

	w.Header().Set("X-Error-Kind", kind.String())
	writeJSON(w, status, nil)
}

func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput, errs.ErrKindUnknownColumn, errs.ErrKindTypeMismatch,
		errs.ErrKindMalformedRecord, errs.ErrKindEncoding:
		return http.StatusBadRequest
	case errs.ErrKindResourceLimit:
		return http.StatusUnprocessableEntity
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindDuplicateTable, errs.ErrKindSchemaConsistency:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// lazyCSV commits the 200 response on the first write, so failures found
// while planning can still be answered with an error status.
type lazyCSV struct {
	w       http.ResponseWriter
	started bool
}

func (l *lazyCSV) start() {
	if l.started {
		return
	}
	l.started = true
	l.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	l.w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
	l.w.WriteHeader(http.StatusOK)
}

func (l *lazyCSV) Write(p []byte) (int, error) {
	l.start()
	return l.w.Write(p)
}

// Close leaves the connection to net/http.
func (l *lazyCSV) Close() error { return nil }

var _ io.WriteCloser = (*lazyCSV)(nil)
