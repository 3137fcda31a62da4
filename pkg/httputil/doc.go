// Package httputil holds the JSON envelopes, request parsing helpers and
// request-scoped middleware shared by the EduGate HTTP handlers.
//
// Envelopes:
//
//	httputil.WriteSuccess(w, customer)                 // {"success":true,"data":...}
//	httputil.WritePage(w, rows, httputil.NewPagination(page, limit, total))
//	httputil.WriteForbidden(w, "Agents can only see assigned customers")
package httputil
