package handler

import (
	"time"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/service"
	"github.com/iliyamo/resource-reservation/internal/state"
)

// Response shapes.  Models carry no json tags; these structs decide what
// leaves the service.

type resourceDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	Capacity     int       `json:"capacity"`
	PadalinysID  uint64    `json:"padalinys_id"`
	IsReservable bool      `json:"is_reservable"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toResourceDTO(r *model.Resource) resourceDTO {
	return resourceDTO{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Location:     r.Location,
		Capacity:     r.Capacity,
		PadalinysID:  r.PadalinysID,
		IsReservable: r.IsReservable,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type allocationDTO struct {
	ID            uint64      `json:"id"`
	ReservationID string      `json:"reservation_id"`
	ResourceID    string      `json:"resource_id"`
	ResourceName  string      `json:"resource_name,omitempty"`
	PadalinysID   uint64      `json:"padalinys_id,omitempty"`
	Quantity      int         `json:"quantity"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       time.Time   `json:"end_time"`
	State         state.State `json:"state"`
	Color         string      `json:"color"`
	Terminal      bool        `json:"terminal"`
}

func toAllocationDTO(rr *model.ReservationResource) allocationDTO {
	return allocationDTO{
		ID:            rr.ID,
		ReservationID: rr.ReservationID,
		ResourceID:    rr.ResourceID,
		ResourceName:  rr.ResourceName,
		PadalinysID:   rr.PadalinysID,
		Quantity:      rr.Quantity,
		StartTime:     rr.StartTime,
		EndTime:       rr.EndTime,
		State:         rr.State,
		Color:         state.Color(rr.State),
		Terminal:      state.Terminal(rr.State),
	}
}

type reservationDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	CompletedAt *time.Time      `json:"completed_at"`
	ManagerIDs  []uint64        `json:"manager_ids,omitempty"`
	Resources   []allocationDTO `json:"resources,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toReservationDTO(r *model.Reservation) reservationDTO {
	out := reservationDTO{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		CompletedAt: r.CompletedAt,
		ManagerIDs:  r.ManagerIDs,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for i := range r.Resources {
		out.Resources = append(out.Resources, toAllocationDTO(&r.Resources[i]))
	}
	return out
}

type capacityDTO struct {
	Resource resourceDTO        `json:"resource"`
	Timeline *capacity.Timeline `json:"timeline"`
	Lowest   int                `json:"lowest"`
}

func toCapacityDTO(rc service.ResourceCapacity) capacityDTO {
	return capacityDTO{Resource: toResourceDTO(rc.Resource), Timeline: rc.Timeline, Lowest: rc.Lowest}
}

type padalinysDTO struct {
	ID        uint64 `json:"id"`
	Shortname string `json:"shortname"`
	Fullname  string `json:"fullname"`
	Alias     string `json:"alias"`
}

type listDTO[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}
