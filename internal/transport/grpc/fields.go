package grpc

import (
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/service/appointments"
)

func stringField(s *structpb.Struct, key string) string {
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strings.TrimSpace(k.StringValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func intField(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func bookingInput(req *structpb.Struct) appointments.BookingInput {
	return appointments.BookingInput{
		Date:            stringField(req, "fecha"),
		Time:            stringField(req, "hora"),
		Extended:        boolField(req, "duracion_extendida"),
		DurationMinutes: intField(req, "duracion_cita"),
		PatientRUT:      stringField(req, "paciente_rut"),
		TreatmentKind:   stringField(req, "tipo_tratamiento"),
		Kind:            stringField(req, "tipo_cita"),
		Status:          stringField(req, "estado"),

		ExcludeAppointmentID: domain.AppointmentID(stringField(req, "excluir")),
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func slotList(slots []domain.TimeSlot) []any {
	out := make([]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}

func idList(ids []domain.AppointmentID) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func appointmentFields(a domain.Appointment) map[string]any {
	duracion := 60
	if a.Extended {
		duracion = 120
	}
	return map[string]any{
		"id":                 string(a.ID),
		"fecha":              a.Date,
		"hora":               a.Time,
		"duracion_extendida": a.Extended,
		"duracion_cita":      duracion,
		"estado":             string(a.Status),
		"paciente_rut":       a.PatientID,
		"paciente_nombre":    a.PatientName,
		"tipo_tratamiento":   a.TreatmentKind,
		"tipo_cita":          string(a.Kind),
	}
}

func validationFields(res availability.ValidationResult) map[string]any {
	out := map[string]any{
		"aceptada":     res.Accepted,
		"hora":         res.Slot.String(),
		"alternativas": slotList(res.Alternatives),
		"conflictos":   idList(res.ConflictsWith),
	}
	if res.NextSlot != "" {
		out["hora_siguiente"] = res.NextSlot.String()
	}
	if !res.Accepted {
		out["motivo"] = string(res.Reason)
		out["mensaje"] = res.Reason.Message()
	}
	return out
}

func bookingFields(res appointments.BookingResult) map[string]any {
	out := validationFields(res.Validation)
	out["aceptada"] = res.Accepted
	out["desactualizada"] = res.Stale
	if res.Accepted {
		out["cita"] = appointmentFields(res.Appointment)
	}
	return out
}

func availabilityFields(res appointments.AvailabilityResult) map[string]any {
	horas := make([]any, 0, len(res.Slots))
	slots := make([]any, 0, len(res.Slots))
	for _, a := range res.Slots {
		horas = append(horas, a.Slot.String())
		slots = append(slots, map[string]any{
			"hora":       a.Slot.String(),
			"estado":     string(a.State()),
			"libre":      a.Free,
			"original":   a.Original,
			"extendible": a.Extendable,
		})
	}
	anomalies := make([]any, 0, len(res.Anomalies))
	for _, a := range res.Anomalies {
		anomalies = append(anomalies, map[string]any{
			"cita_id": string(a.AppointmentID),
			"tipo":    string(a.Kind),
			"detalle": a.Detail,
		})
	}
	discrepancies := make([]any, 0, len(res.Discrepancies))
	for _, d := range res.Discrepancies {
		discrepancies = append(discrepancies, map[string]any{
			"hora": d.Slot.String(),
			"tipo": string(d.Kind),
		})
	}
	return map[string]any{
		"fecha":             res.Date.String(),
		"horas_disponibles": horas,
		"slots":             slots,
		"ocupadas":          slotList(res.Occupied),
		"disputadas":        slotList(res.Contested),
		"anomalias":         anomalies,
		"discrepancias":     discrepancies,
		"fuente":            string(res.Source),
		"degradado":         res.Degraded,
	}
}
