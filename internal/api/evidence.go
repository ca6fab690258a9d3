package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/settleline/internal/api/auth"
	"github.com/settleline/internal/evidence"
)

// 25 MB, matching the identity-document cap.
const maxUploadBytes = 25 << 20

func (s *Server) uploadEvidence(c echo.Context) error {
	actor := auth.GetActor(c)
	ctx := c.Request().Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds size limit")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	defer src.Close()

	// Store the artifact first; Upload removes it again if the dispute
	// turns out to be closed or the record is rejected.
	ref, err := s.deps.Blobs.Put(ctx, fileHeader.Filename, src)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store artifact")
	}

	mediaType := fileHeader.Header.Get("Content-Type")
	ev, err := s.deps.Ingest.Upload(ctx, *actor, evidence.UploadParams{
		DisputeID:   c.Param("id"),
		FileName:    fileHeader.Filename,
		MediaType:   mediaType,
		ArtifactRef: ref,
		Description: c.FormValue("description"),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ev)
}

func (s *Server) listEvidence(c echo.Context) error {
	actor := auth.GetActor(c)
	evs, err := s.deps.Ingest.List(c.Request().Context(), *actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, evs)
}

func (s *Server) downloadEvidence(c echo.Context) error {
	actor := auth.GetActor(c)
	ctx := c.Request().Context()

	ev, err := s.deps.Ingest.Fetch(ctx, *actor, c.Param("id"), c.Param("evidenceID"))
	if err != nil {
		return httpError(err)
	}

	src, err := s.deps.Blobs.Open(ctx, ev.ArtifactRef)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not available")
	}
	defer src.Close()

	mediaType := ev.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", ev.FileName))
	return c.Stream(http.StatusOK, mediaType, src)
}
