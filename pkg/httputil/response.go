package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// WriteErrorMessage writes {"error": message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteDetailedError writes {"error", "message"} with an optional machine readable code
func WriteDetailedError(w http.ResponseWriter, status int, errText, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: errText, Message: message, Code: code})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes {"error":"Access denied","message":message} (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteDetailedError(w, http.StatusForbidden, "Access denied", message, "")
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError hides err from the client; callers log it
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}

// DataResponse is the {success, data} envelope
type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteSuccess writes a 200 {success:true, data}
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, DataResponse{Success: true, Data: data})
}

// WriteCreated writes a 201 {success:true, data}
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, DataResponse{Success: true, Data: data})
}

// WriteSuccessMessage writes a 200 {success:true, message}
func WriteSuccessMessage(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, DataResponse{Success: true, Message: message})
}

// Pagination describes one page of a listing
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// NewPagination computes the page count, which is zero when total is zero
func NewPagination(page, limit int, total int64) Pagination {
	var pages int64
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// PageResponse is the {success, data, pagination} envelope
type PageResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// WritePage writes a paginated listing
func WritePage(w http.ResponseWriter, data interface{}, p Pagination) error {
	return WriteJSON(w, http.StatusOK, PageResponse{Success: true, Data: data, Pagination: p})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
