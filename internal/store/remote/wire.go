package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"podoclinic/backend/internal/domain"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type citaJSON struct {
	ID                flexID     `json:"id,omitempty"`
	Fecha             string     `json:"fecha"`
	Hora              string     `json:"hora"`
	DuracionExtendida bool       `json:"duracion_extendida"`
	DuracionCita      int        `json:"duracion_cita,omitempty"`
	Estado            string     `json:"estado,omitempty"`
	PacienteRUT       flexString `json:"paciente_rut,omitempty"`
	Paciente          flexString `json:"paciente,omitempty"`
	PacienteNombre    string     `json:"paciente_nombre,omitempty"`
	TipoTratamiento   string     `json:"tipo_tratamiento,omitempty"`
	TipoCita          string     `json:"tipo_cita,omitempty"`
}

func (c citaJSON) appointment() domain.Appointment {
	rut := string(c.PacienteRUT)
	if rut == "" {
		rut = string(c.Paciente)
	}
	return domain.Appointment{
		ID:            domain.AppointmentID(c.ID),
		Date:          c.Fecha,
		Time:          c.Hora,
		Extended:      c.DuracionExtendida || c.DuracionCita == 120,
		PatientID:     rut,
		PatientName:   c.PacienteNombre,
		TreatmentKind: c.TipoTratamiento,
		Kind:          domain.AppointmentKind(c.TipoCita),
		Status:        domain.Status(c.Estado),
	}
}

func citaFrom(a domain.Appointment) citaJSON {
	duracion := 60
	if a.Extended {
		duracion = 120
	}
	return citaJSON{
		ID:                flexID(a.ID),
		Fecha:             a.Date,
		Hora:              a.Time,
		DuracionExtendida: a.Extended,
		DuracionCita:      duracion,
		Estado:            string(a.Status),
		PacienteRUT:       flexString(a.PatientID),
		TipoTratamiento:   a.TreatmentKind,
		TipoCita:          string(a.Kind),
	}
}

// flexID is an appointment id. Numeric ids are written back as numbers so
// the API sees the type it handed out.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexID(s)
	return nil
}

func (f flexID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

// decodeCitas accepts a bare array or an object wrapping it under "citas".
func decodeCitas(b []byte) ([]citaJSON, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty appointment listing")
	}
	if trimmed[0] == '[' {
		var out []citaJSON
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapped struct {
		Citas   *[]citaJSON `json:"citas"`
		Results *[]citaJSON `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case wrapped.Citas != nil:
		return *wrapped.Citas, nil
	case wrapped.Results != nil:
		return *wrapped.Results, nil
	}
	return nil, fmt.Errorf("appointment listing has neither citas nor results")
}

type pacienteJSON struct {
	RUT      string `json:"rut"`
	Nombre   string `json:"nombre"`
	Telefono string `json:"telefono"`
	Correo   string `json:"correo"`
}

type disponiblesJSON struct {
	HorasDisponibles []string `json:"horas_disponibles"`
}

func apiError(status int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("appointment store returned %d: %s", status, msg)
}
