package parking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes live lot state to Prometheus. It reads the current
// system on every scrape, so a rebuilt system is picked up automatically.
type Collector struct {
	source func() *System

	occupied        *prometheus.Desc
	capacity        *prometheus.Desc
	waiting         *prometheus.Desc
	waitingCapacity *prometheus.Desc
	moves           *prometheus.Desc
}

func NewCollector(source func() *System) *Collector {
	return &Collector{
		source: source,
		occupied: prometheus.NewDesc("parking_occupied",
			"Vehicles parked on each side of the lot", []string{"side"}, nil),
		capacity: prometheus.NewDesc("parking_capacity",
			"Total parking slots", nil, nil),
		waiting: prometheus.NewDesc("parking_waiting",
			"Vehicles waiting on each side road lane", []string{"lane"}, nil),
		waitingCapacity: prometheus.NewDesc("parking_waiting_capacity",
			"Total side road capacity", nil, nil),
		moves: prometheus.NewDesc("parking_moves_total",
			"Vehicles moved between sides by rebalancing", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.occupied
	ch <- c.capacity
	ch <- c.waiting
	ch <- c.waitingCapacity
	ch <- c.moves
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	if s == nil {
		return
	}

	status := s.Status()
	moves := len(s.MoveHistory())

	ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(len(status.North)), string(North))
	ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(len(status.South)), string(South))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(status.Capacity))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(len(status.NorthQueue)), string(North))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(len(status.SouthQueue)), string(South))
	ch <- prometheus.MustNewConstMetric(c.waitingCapacity, prometheus.GaugeValue, float64(status.WaitingCapacity))
	ch <- prometheus.MustNewConstMetric(c.moves, prometheus.CounterValue, float64(moves))
}
