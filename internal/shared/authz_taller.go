package shared

// Workshop permissions declared for RBAC.
const (
	PermClientesVer    = "clientes.ver"
	PermClientesEditar = "clientes.editar"

	PermVehiculosVer    = "vehiculos.ver"
	PermVehiculosEditar = "vehiculos.editar"

	PermCotizacionesVer     = "cotizaciones.ver"
	PermCotizacionesCrear   = "cotizaciones.crear"
	PermCotizacionesAprobar = "cotizaciones.aprobar"

	PermOrdenesVer    = "ordenes.ver"
	PermOrdenesCrear  = "ordenes.crear"
	PermOrdenesCerrar = "ordenes.cerrar"

	PermVentasVer         = "ventas.ver"
	PermFacturacionVer    = "facturacion.ver"
	PermFacturacionEmitir = "facturacion.emitir"

	PermInventarioVer         = "inventario.ver"
	PermInventarioMovimientos = "inventario.movimientos"

	PermDashboardVer    = "dashboard.ver"
	PermReportesGenerar = "reportes.generar"
)

// TallerScopes lists all permissions related to workshop operations.
func TallerScopes() []string {
	defs := tallerCatalog()
	codes := make([]string, 0, len(defs))
	for _, d := range defs {
		codes = append(codes, d.Code)
	}
	return codes
}

func tallerCatalog() []PermissionDef {
	return []PermissionDef{
		{PermClientesVer, "Ver clientes", "", "clientes", ""},
		{PermClientesEditar, "Editar clientes", "", "clientes", ""},
		{PermVehiculosVer, "Ver vehículos", "", "vehiculos", ""},
		{PermVehiculosEditar, "Editar vehículos", "", "vehiculos", ""},
		{PermCotizacionesVer, "Ver cotizaciones", "", "ventas", "cotizaciones"},
		{PermCotizacionesCrear, "Crear cotizaciones", "", "ventas", "cotizaciones"},
		{PermCotizacionesAprobar, "Aprobar cotizaciones", "", "ventas", "cotizaciones"},
		{PermVentasVer, "Ver ventas", "", "ventas", "ventas"},
		{PermOrdenesVer, "Ver órdenes de trabajo", "", "taller", "ordenes"},
		{PermOrdenesCrear, "Crear órdenes de trabajo", "", "taller", "ordenes"},
		{PermOrdenesCerrar, "Cerrar órdenes de trabajo", "", "taller", "ordenes"},
		{PermFacturacionVer, "Ver facturas", "", "facturacion", ""},
		{PermFacturacionEmitir, "Emitir facturas", "", "facturacion", ""},
		{PermInventarioVer, "Ver inventario", "", "inventario", ""},
		{PermInventarioMovimientos, "Registrar movimientos", "Entradas, salidas y ajustes de inventario", "inventario", "movimientos"},
		{PermDashboardVer, "Ver tablero", "", "dashboard", ""},
		{PermReportesGenerar, "Generar reportes", "Solicitar reportes en segundo plano", "reportes", ""},
	}
}
