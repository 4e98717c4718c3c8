package billing

// SRIConfig parámetros del pipeline de emisión para el orquestador:
// ambiente, RUC del emisor (para la clave de acceso) y certificado de firma.
type SRIConfig struct {
	Ambiente     string // "1" = Pruebas, "2" = Producción
	RUC          string
	CertPath     string // ruta al .p12
	CertPassword string
}
