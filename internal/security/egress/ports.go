package egress

import (
	"fmt"
	"sort"
)

// DefaultDangerousPorts lists service ports that are refused on any host:
// ssh, smtp, dns, mysql, postgres, redis, dev servers and mongodb.
var DefaultDangerousPorts = []int{22, 25, 53, 3306, 5432, 6379, 8000, 8001, 8080, 8888, 27017}

type PortSet struct {
	ports map[uint16]struct{}
}

func NewPortSet(ports []int) (*PortSet, error) {
	set := &PortSet{ports: make(map[uint16]struct{}, len(ports))}
	for _, p := range ports {
		if p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid dangerous port %d", p)
		}
		set.ports[uint16(p)] = struct{}{}
	}
	return set, nil
}

func (s *PortSet) Contains(port uint16) bool {
	if s == nil {
		return false
	}
	_, ok := s.ports[port]
	return ok
}

func (s *PortSet) List() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, int(p))
	}
	sort.Ints(out)
	return out
}
