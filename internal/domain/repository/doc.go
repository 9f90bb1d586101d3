// Package repository define las entidades del dominio del panel y las
// interfaces de persistencia que los adapters (pg, memory) implementan.
//
// Ningún componente del core toca un handle de base de datos directamente:
// toda la persistencia pasa por estas interfaces, inyectadas por el wiring.
// La atomicidad de las operaciones condicionales (consume de tokens, claim
// de allocations, transiciones de transfer) es responsabilidad del adapter.
package repository
