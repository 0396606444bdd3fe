package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/export"
	"dbella/pos/internal/service"
)

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleCheckoutLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LookupCheckoutByIdempotency(r.Context(), r.PathValue("key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.ListSales(r.Context(), q.Get("from"), q.Get("to"), q.Get("client_id"), parsePositiveLimit(q.Get("limit"), 500, 5000))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleSalesCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, _, _, err := a.service.SalesRows(r.Context(), q.Get("from"), q.Get("to"), q.Get("client_id"), 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	principal, _ := service.PrincipalFromContext(r.Context())
	var buf bytes.Buffer
	if err := export.WriteSalesCSV(&buf, rows, principal.Can(domain.CapProfitability), a.service.Location()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", export.SalesFilename(a.localNow()), buf.Bytes())
}

func (a *API) handleReceiptPDF(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReceiptPDF(&buf, &sale, a.service.Location()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAttachment(w, "application/pdf", fmt.Sprintf("recibo_%s.pdf", sale.ID), buf.Bytes())
}

func (a *API) handleProfits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := a.service.Profits(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleProfitDetail(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.ProfitDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleProfitsXLSX(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := a.service.Profits(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteProfitsXLSX(&buf, report.Rows, a.service.Location()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.ProfitsFilename(a.localNow()), buf.Bytes())
}

func (a *API) localNow() time.Time {
	return time.Now().In(a.service.Location())
}

func writeAttachment(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
