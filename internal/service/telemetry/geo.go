package telemetry

import (
	"math/rand"
	"net"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
)

type continentBox struct {
	code   string
	name   string
	latMin float64
	latMax float64
	lngMin float64
	lngMax float64
}

// Boxes are narrowed to land-heavy areas so markers rarely land at sea.
var continents = []continentBox{
	{code: "NA", name: "North America", latMin: 30, latMax: 48, lngMin: -118, lngMax: -80},
	{code: "SA", name: "South America", latMin: -25, latMax: -5, lngMin: -65, lngMax: -45},
	{code: "EU", name: "Europe", latMin: 45, latMax: 55, lngMin: 5, lngMax: 25},
	{code: "AF", name: "Africa", latMin: 0, latMax: 15, lngMin: 10, lngMax: 30},
	{code: "AS", name: "Asia", latMin: 20, latMax: 45, lngMin: 80, lngMax: 120},
	{code: "OC", name: "Oceania", latMin: -33, latMax: -25, lngMin: 135, lngMax: 150},
}

// Home is the protected data centre. Loopback traffic is placed here and
// animated trajectories travel towards it.
var Home = domain.Geo{Lat: 39.0438, Lng: -77.4874, Name: "DC01-ASHBURN", Continent: "US"}

const fracScale = 1 << 16

// FallbackGeo places an address that arrived without usable coordinates. The
// result depends only on the address.
func FallbackGeo(address string) domain.Geo {
	address = strings.TrimSpace(address)
	if isLoopback(address) {
		return Home
	}
	h := xxhash.Sum64String(address)
	box := continents[h%uint64(len(continents))]
	latFrac := float64((h>>16)%fracScale) / fracScale
	lngFrac := float64((h>>32)%fracScale) / fracScale
	return box.point(latFrac, lngFrac)
}

// RandomGeo picks a point in a random continent box.
func RandomGeo(r *rand.Rand) domain.Geo {
	box := continents[r.Intn(len(continents))]
	return box.point(r.Float64(), r.Float64())
}

func (b continentBox) point(latFrac, lngFrac float64) domain.Geo {
	return domain.Geo{
		Lat:       b.latMin + latFrac*(b.latMax-b.latMin),
		Lng:       b.lngMin + lngFrac*(b.lngMax-b.lngMin),
		Name:      b.name,
		Continent: b.code,
	}
}

func isLoopback(address string) bool {
	if strings.EqualFold(address, "localhost") {
		return true
	}
	ip := net.ParseIP(address)
	return ip != nil && ip.IsLoopback()
}
