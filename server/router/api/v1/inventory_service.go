package v1

import (
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/fridgesense/fridge"
	"github.com/hrygo/fridgesense/store"
)

// maxUploadBytes bounds a single photo upload.
const maxUploadBytes = 16 << 20

// maxConcurrentPhotoJobs caps in-flight photo reconciliations. Each one
// embeds the image and may call the generative model, so unbounded
// fan-out would exhaust the AI quota.
const maxConcurrentPhotoJobs = 4

// InventoryService serves the inventory ledger and the photo
// reconciliation endpoints.
type InventoryService struct {
	Store      *store.Store
	Reconciler *fridge.Reconciler

	photoSemaphore *semaphore.Weighted
}

// NewInventoryService creates an InventoryService.
func NewInventoryService(st *store.Store, reconciler *fridge.Reconciler) *InventoryService {
	return &InventoryService{
		Store:          st,
		Reconciler:     reconciler,
		photoSemaphore: semaphore.NewWeighted(maxConcurrentPhotoJobs),
	}
}

// itemResponse is the JSON shape of one inventory item.
type itemResponse struct {
	ID             int32  `json:"id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	DateAdded      string `json:"date_added"`
	ExpirationDate string `json:"expiration_date"`
	HasImage       bool   `json:"has_image"`
}

func toItemResponse(item *store.InventoryItem) *itemResponse {
	return &itemResponse{
		ID:             item.ID,
		Name:           item.Name,
		Quantity:       item.Quantity,
		DateAdded:      item.DateAdded.UTC().Format(time.RFC3339),
		ExpirationDate: item.ExpirationDate,
		HasImage:       len(item.ImageData) > 0,
	}
}

func (s *InventoryService) ListItems(c echo.Context) error {
	ctx := c.Request().Context()
	find := &store.FindInventoryItem{}
	if name := c.QueryParam("name"); name != "" {
		canonical := store.CanonicalName(name)
		find.Name = &canonical
	}

	items, err := s.Store.ListInventoryItems(ctx, find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list items").SetInternal(err)
	}

	resp := make([]*itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": resp})
}

func (s *InventoryService) GetItem(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseItemID(c)
	if err != nil {
		return err
	}

	item, err := s.Store.GetInventoryItem(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get item").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toItemResponse(item))
}

type createItemRequest struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	ExpirationDate string `json:"expiration_date"`
}

func (s *InventoryService) CreateItem(c echo.Context) error {
	ctx := c.Request().Context()
	req := &createItemRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	item, err := s.Store.CreateInventoryItem(ctx, &store.InventoryItem{
		Name:           req.Name,
		Quantity:       req.Quantity,
		ExpirationDate: req.ExpirationDate,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, toItemResponse(item))
}

type updateItemRequest struct {
	Name           *string `json:"name"`
	Quantity       *int    `json:"quantity"`
	ExpirationDate *string `json:"expiration_date"`
}

func (s *InventoryService) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseItemID(c)
	if err != nil {
		return err
	}

	req := &updateItemRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if req.Name == nil && req.Quantity == nil && req.ExpirationDate == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	item, err := s.Store.UpdateInventoryItem(ctx, &store.UpdateInventoryItem{
		ID:               id,
		Name:             req.Name,
		Quantity:         req.Quantity,
		ExpirationDate:   req.ExpirationDate,
		RefreshDateAdded: true,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update item").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toItemResponse(item))
}

func (s *InventoryService) DeleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseItemID(c)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteInventoryItem(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete item").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ProcessImage reconciles one photo against the ledger. The multipart
// form carries the photo as "image" and the direction as "action":
// "add" (intake, default) or "remove" (outtake).
func (s *InventoryService) ProcessImage(c echo.Context) error {
	ctx := c.Request().Context()
	photo, err := readUpload(c, "image")
	if err != nil {
		return err
	}

	if err := s.photoSemaphore.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request canceled while waiting for a photo slot").SetInternal(err)
	}
	defer s.photoSemaphore.Release(1)

	switch c.FormValue("action") {
	case "", "add":
		result, err := s.Reconciler.ProcessIntake(ctx, photo)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to process image").SetInternal(err)
		}
		return c.JSON(http.StatusOK, result)
	case "remove":
		result, err := s.Reconciler.ProcessOuttake(ctx, photo)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to process image").SetInternal(err)
		}
		return c.JSON(http.StatusOK, result)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, `action must be "add" or "remove"`)
	}
}

// UploadImagePair reconciles a before/after pair in one call: "in_image"
// runs intake, "out_image" runs outtake. At least one is required. The
// intake photo additionally yields display-only suggestions of
// visually similar known items.
func (s *InventoryService) UploadImagePair(c echo.Context) error {
	ctx := c.Request().Context()

	inPhoto, inErr := readUpload(c, "in_image")
	outPhoto, outErr := readUpload(c, "out_image")
	if inErr != nil && outErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one of in_image, out_image is required")
	}

	if err := s.photoSemaphore.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request canceled while waiting for a photo slot").SetInternal(err)
	}
	defer s.photoSemaphore.Release(1)

	resp := map[string]any{}
	if inErr == nil {
		intake, err := s.Reconciler.ProcessIntake(ctx, inPhoto)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to process intake image").SetInternal(err)
		}
		resp["intake"] = intake

		suggestions, err := s.Reconciler.Suggest(ctx, inPhoto, 3)
		if err == nil {
			names := make([]string, 0, len(suggestions))
			for _, m := range suggestions {
				names = append(names, m.Record.Name)
			}
			resp["suggestions"] = names
		}
	}
	if outErr == nil {
		outtake, err := s.Reconciler.ProcessOuttake(ctx, outPhoto)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to process outtake image").SetInternal(err)
		}
		resp["outtake"] = outtake
	}
	return c.JSON(http.StatusOK, resp)
}

type confirmUpdatesRequest struct {
	Updates []fridge.ConfirmUpdate `json:"updates"`
}

// ConfirmUpdates applies staged pending updates. Per-item failures are
// reported in the body; the call itself succeeds.
func (s *InventoryService) ConfirmUpdates(c echo.Context) error {
	ctx := c.Request().Context()
	req := &confirmUpdatesRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if len(req.Updates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "updates list is empty")
	}
	return c.JSON(http.StatusOK, s.Reconciler.ConfirmUpdates(ctx, req.Updates))
}

type rejectUpdateRequest struct {
	ItemName         string `json:"item_name"`
	OriginalQuantity int    `json:"original_quantity"`
	// ImageData is the base64-encoded photo that triggered the rejected
	// match; it seeds the disambiguated item.
	ImageData string `json:"image_data"`
}

// RejectUpdate reverts a staged update and creates a disambiguated
// sibling item (name_1, name_2, ...).
func (s *InventoryService) RejectUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	req := &rejectUpdateRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if req.ItemName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item_name is required")
	}

	var imageData []byte
	if req.ImageData != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageData)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "image_data is not valid base64").SetInternal(err)
		}
		imageData = decoded
	}

	result, err := s.Reconciler.RejectUpdate(ctx, req.ItemName, req.OriginalQuantity, imageData)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reject update").SetInternal(err)
	}
	return c.JSON(http.StatusOK, result)
}

func parseItemID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	return int32(id), nil
}

// readUpload reads one multipart file field, size-capped.
func readUpload(c echo.Context, field string) ([]byte, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, field+" file is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "uploaded image is too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to open upload").SetInternal(err)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read upload").SetInternal(err)
	}
	if len(data) > maxUploadBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "uploaded image is too large")
	}
	return data, nil
}
