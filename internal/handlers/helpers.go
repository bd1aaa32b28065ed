package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/platform/auth"
	"github.com/customtees/api/internal/platform/httpx"
	"github.com/customtees/api/internal/services"
)

var errBodyTooLarge = errors.New("request body too large")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, errors.New("unable to read request body")
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimeParam(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}

// Address payloads -----------------------------------------------------------

type addressPayload struct {
	FullName   string  `json:"full_name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		FullName:   addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (p addressPayload) toDomain() domain.Address {
	addr := domain.Address{
		FullName:   strings.TrimSpace(p.FullName),
		Phone:      strings.TrimSpace(p.Phone),
		Line1:      strings.TrimSpace(p.Line1),
		City:       strings.TrimSpace(p.City),
		State:      strings.TrimSpace(p.State),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Country:    strings.TrimSpace(p.Country),
	}
	if p.Line2 != nil {
		line2 := strings.TrimSpace(*p.Line2)
		if line2 != "" {
			addr.Line2 = &line2
		}
	}
	return addr
}

// Design payloads -------------------------------------------------------------

type designLayerPayload struct {
	ID       string         `json:"id,omitempty"`
	Kind     string         `json:"kind"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	ScaleX   float64        `json:"scale_x,omitempty"`
	ScaleY   float64        `json:"scale_y,omitempty"`
	Rotation float64        `json:"rotation,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

type designSidePayload struct {
	Layers       []designLayerPayload `json:"layers"`
	PreviewImage string               `json:"preview_image,omitempty"`
	DesignData   map[string]any       `json:"design_data,omitempty"`
}

func buildDesignSidePayload(side *domain.DesignSide) *designSidePayload {
	if side == nil {
		return nil
	}
	payload := designSidePayload{
		Layers:       make([]designLayerPayload, 0, len(side.Layers)),
		PreviewImage: side.PreviewImage,
		DesignData:   side.DesignData,
	}
	for _, layer := range side.Layers {
		payload.Layers = append(payload.Layers, designLayerPayload{
			ID:       layer.ID,
			Kind:     string(layer.Kind),
			X:        layer.X,
			Y:        layer.Y,
			Width:    layer.Width,
			Height:   layer.Height,
			ScaleX:   layer.ScaleX,
			ScaleY:   layer.ScaleY,
			Rotation: layer.Rotation,
			Payload:  layer.Payload,
		})
	}
	return &payload
}

func (p *designSidePayload) toDomain() *services.DesignSide {
	if p == nil {
		return nil
	}
	side := services.DesignSide{
		PreviewImage: p.PreviewImage,
		DesignData:   p.DesignData,
	}
	if len(p.Layers) > 0 {
		side.Layers = make([]domain.DesignLayer, 0, len(p.Layers))
		for _, layer := range p.Layers {
			side.Layers = append(side.Layers, domain.DesignLayer{
				ID:       strings.TrimSpace(layer.ID),
				Kind:     domain.LayerKind(strings.TrimSpace(layer.Kind)),
				X:        layer.X,
				Y:        layer.Y,
				Width:    layer.Width,
				Height:   layer.Height,
				ScaleX:   layer.ScaleX,
				ScaleY:   layer.ScaleY,
				Rotation: layer.Rotation,
				Payload:  layer.Payload,
			})
		}
	}
	return &side
}
