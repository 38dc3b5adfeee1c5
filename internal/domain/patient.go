package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Patient is the clinic directory record an appointment refers to by RUT.
type Patient struct {
	bun.BaseModel `bun:"table:pacientes"`

	RUT       string    `bun:"rut,pk"`
	Name      string    `bun:"nombre,notnull"`
	Phone     string    `bun:"telefono"`
	Email     string    `bun:"correo"`
	CreatedAt time.Time `bun:"fecha_registro,notnull,default:current_timestamp"`
}
