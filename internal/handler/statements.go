package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/service"
)

// uploadStatementHandler accepts a multipart form with a "file" field and
// persists the raw statement in state Uploaded.
func uploadStatementHandler(svc *service.StatementService, maxUploadBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			logger.Debug("upload: bad multipart form", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid multipart form or file too large")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing 'file' field")
			return
		}
		defer file.Close()

		fileData, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read file")
			return
		}

		st, err := svc.Upload(r.Context(),
			BusinessIDFromContext(r.Context()),
			UserIDFromContext(r.Context()),
			header.Filename,
			header.Header.Get("Content-Type"),
			fileData,
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, domain.StatementDTO{
			ID:         st.ID,
			FileName:   st.FileName,
			UploadDate: st.UploadDate,
			Status:     string(st.Status),
		})
	}
}

// processStatementHandler parses the stored statement into transactions.
func processStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		res, err := svc.Process(r.Context(),
			BusinessIDFromContext(r.Context()),
			UserIDFromContext(r.Context()),
			id,
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func listStatementsHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := parsePagination(r)

		resp, err := svc.List(r.Context(), BusinessIDFromContext(r.Context()), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		dto, err := svc.Get(r.Context(), BusinessIDFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, dto)
	}
}

// getStatementFileHandler streams the original uploaded file back.
func getStatementFileHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		st, err := svc.GetFile(r.Context(), BusinessIDFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		contentType := st.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.FileName))
		w.WriteHeader(http.StatusOK)
		w.Write(st.FileData)
	}
}

func deleteStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := svc.Delete(r.Context(),
			BusinessIDFromContext(r.Context()),
			UserIDFromContext(r.Context()),
			id,
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
