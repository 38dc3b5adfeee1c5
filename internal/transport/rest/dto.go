package rest

import (
	"strings"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/service/appointments"
)

type citaRequest struct {
	Fecha             string `json:"fecha"`
	Hora              string `json:"hora"`
	DuracionExtendida bool   `json:"duracion_extendida"`
	DuracionCita      int    `json:"duracion_cita"`
	PacienteRUT       string `json:"paciente_rut"`
	TipoTratamiento   string `json:"tipo_tratamiento"`
	TipoCita          string `json:"tipo_cita"`
	Estado            string `json:"estado"`
	Excluir           string `json:"excluir"`
}

func (r citaRequest) input() appointments.BookingInput {
	return appointments.BookingInput{
		Date:            r.Fecha,
		Time:            r.Hora,
		Extended:        r.DuracionExtendida,
		DurationMinutes: r.DuracionCita,
		PatientRUT:      r.PacienteRUT,
		TreatmentKind:   r.TipoTratamiento,
		Kind:            r.TipoCita,
		Status:          r.Estado,

		ExcludeAppointmentID: domain.AppointmentID(strings.TrimSpace(r.Excluir)),
	}
}

type estadoRequest struct {
	Estado string `json:"estado"`
}

type citaResponse struct {
	ID                string `json:"id"`
	Fecha             string `json:"fecha"`
	Hora              string `json:"hora"`
	DuracionExtendida bool   `json:"duracion_extendida"`
	DuracionCita      int    `json:"duracion_cita"`
	Estado            string `json:"estado"`
	PacienteRUT       string `json:"paciente_rut"`
	PacienteNombre    string `json:"paciente_nombre,omitempty"`
	TipoTratamiento   string `json:"tipo_tratamiento"`
	TipoCita          string `json:"tipo_cita"`
}

func toCita(a domain.Appointment) citaResponse {
	duracion := 60
	if a.Extended {
		duracion = 120
	}
	return citaResponse{
		ID:                string(a.ID),
		Fecha:             a.Date,
		Hora:              a.Time,
		DuracionExtendida: a.Extended,
		DuracionCita:      duracion,
		Estado:            string(a.Status),
		PacienteRUT:       a.PatientID,
		PacienteNombre:    a.PatientName,
		TipoTratamiento:   a.TreatmentKind,
		TipoCita:          string(a.Kind),
	}
}

type validacionResponse struct {
	Aceptada      bool     `json:"aceptada"`
	Motivo        string   `json:"motivo,omitempty"`
	Mensaje       string   `json:"mensaje,omitempty"`
	Hora          string   `json:"hora,omitempty"`
	HoraSiguiente string   `json:"hora_siguiente,omitempty"`
	Conflictos    []string `json:"conflictos"`
	Alternativas  []string `json:"alternativas"`
}

func toValidation(res availability.ValidationResult) validacionResponse {
	out := validacionResponse{
		Aceptada:      res.Accepted,
		Hora:          res.Slot.String(),
		HoraSiguiente: res.NextSlot.String(),
		Conflictos:    make([]string, 0, len(res.ConflictsWith)),
		Alternativas:  slotStrings(res.Alternatives),
	}
	for _, id := range res.ConflictsWith {
		out.Conflictos = append(out.Conflictos, string(id))
	}
	if !res.Accepted {
		out.Motivo = string(res.Reason)
		out.Mensaje = res.Reason.Message()
	}
	return out
}

type reservaResponse struct {
	validacionResponse
	Desactualizada bool          `json:"desactualizada,omitempty"`
	Cita           *citaResponse `json:"cita,omitempty"`
}

func toBooking(res appointments.BookingResult) reservaResponse {
	out := reservaResponse{validacionResponse: toValidation(res.Validation), Desactualizada: res.Stale}
	out.Aceptada = res.Accepted
	if res.Accepted {
		cita := toCita(res.Appointment)
		out.Cita = &cita
	}
	return out
}

type slotResponse struct {
	Hora       string `json:"hora"`
	Estado     string `json:"estado"`
	Libre      bool   `json:"libre"`
	Original   bool   `json:"original"`
	Extendible bool   `json:"extendible"`
}

type anomaliaResponse struct {
	CitaID  string `json:"cita_id"`
	Tipo    string `json:"tipo"`
	Detalle string `json:"detalle"`
}

type discrepanciaResponse struct {
	Hora string `json:"hora"`
	Tipo string `json:"tipo"`
}

// DisponiblesResponse is the JSON shape of a day's availability, shared by
// the HTTP API and the CLI.
type DisponiblesResponse struct {
	Fecha            string                 `json:"fecha"`
	HorasDisponibles []string               `json:"horas_disponibles"`
	Slots            []slotResponse         `json:"slots"`
	Ocupadas         []string               `json:"ocupadas"`
	Disputadas       []string               `json:"disputadas"`
	Anomalias        []anomaliaResponse     `json:"anomalias"`
	Discrepancias    []discrepanciaResponse `json:"discrepancias"`
	Fuente           string                 `json:"fuente"`
	Degradado        bool                   `json:"degradado"`
}

func NewDisponiblesResponse(res appointments.AvailabilityResult) DisponiblesResponse {
	out := DisponiblesResponse{
		Fecha:            res.Date.String(),
		HorasDisponibles: slotStrings(availability.Slots(res.Slots)),
		Slots:            make([]slotResponse, 0, len(res.Slots)),
		Ocupadas:         slotStrings(res.Occupied),
		Disputadas:       slotStrings(res.Contested),
		Anomalias:        make([]anomaliaResponse, 0, len(res.Anomalies)),
		Discrepancias:    make([]discrepanciaResponse, 0, len(res.Discrepancies)),
		Fuente:           string(res.Source),
		Degradado:        res.Degraded,
	}
	for _, a := range res.Slots {
		out.Slots = append(out.Slots, slotResponse{
			Hora:       a.Slot.String(),
			Estado:     string(a.State()),
			Libre:      a.Free,
			Original:   a.Original,
			Extendible: a.Extendable,
		})
	}
	for _, a := range res.Anomalies {
		out.Anomalias = append(out.Anomalias, anomaliaResponse{CitaID: string(a.AppointmentID), Tipo: string(a.Kind), Detalle: a.Detail})
	}
	for _, d := range res.Discrepancies {
		out.Discrepancias = append(out.Discrepancias, discrepanciaResponse{Hora: d.Slot.String(), Tipo: string(d.Kind)})
	}
	return out
}

func slotStrings(slots []domain.TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}
