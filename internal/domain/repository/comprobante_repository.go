package repository

import (
	"context"

	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
)

// ComprobanteRepository define el puerto de persistencia para el comprobante
// y sus artefactos SRI. El orquestador persiste cada transición de estado a
// través de este puerto; la corrección del pipeline (envío a lo sumo una vez
// por clave de acceso) descansa en el estado persistido, no en locks en
// memoria, para sobrevivir reinicios del proceso.
type ComprobanteRepository interface {
	Create(ctx context.Context, c *entity.Comprobante) error
	// Update persiste estado y artefactos SRI:
	// estado, clave_acceso, xml_generado, xml_firmado, numero_autorizacion,
	// fecha_autorizacion, respuesta_sri, mensajes_sri.
	Update(ctx context.Context, c *entity.Comprobante) error
	GetByID(ctx context.Context, id string) (*entity.Comprobante, error)
	// ListByEstado devuelve los comprobantes en un estado dado (ligero, para
	// el barrido periódico de autorizaciones pendientes).
	ListByEstado(ctx context.Context, estado string) ([]*entity.Comprobante, error)
}
