// Package fixtures generates labeled connection datasets shaped like the
// production training data, for tests.
package fixtures

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
)

var Header = []string{
	"src_ip", "src_port", "dst_ip", "dst_port", "proto", "service", "duration",
	"src_bytes", "dst_bytes", "conn_state", "missed_bytes", "src_pkts", "dst_pkts",
	"dns_query", "dns_qclass", "dns_qtype", "dns_rcode",
	"http_request_body_len", "http_response_body_len", "http_status_code",
	"label", "type",
}

// CanonicalBenign is a benign-shaped record as submitted by the form.
func CanonicalBenign() map[string]string {
	return map[string]string{
		"duration":               "2.0",
		"src_bytes":              "350",
		"dst_bytes":              "500",
		"src_pkts":               "10",
		"dst_pkts":               "12",
		"proto":                  "tcp",
		"service":                "-",
		"conn_state":             "SF",
		"http_request_body_len":  "200",
		"http_response_body_len": "1000",
		"http_status_code":       "200",
	}
}

// CanonicalAttack is a scan-shaped record: short, rejected, almost no bytes.
func CanonicalAttack() map[string]string {
	return map[string]string{
		"duration":               "0.001",
		"src_bytes":              "0",
		"dst_bytes":              "0",
		"src_pkts":               "1",
		"dst_pkts":               "1",
		"proto":                  "tcp",
		"service":                "-",
		"conn_state":             "REJ",
		"http_request_body_len":  "0",
		"http_response_body_len": "0",
		"http_status_code":       "0",
	}
}

// SyntheticCSV returns n rows alternating benign and attack traffic. The
// classes are separable, so any reasonable classifier scores them well.
func SyntheticCSV(n int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	var b strings.Builder
	b.WriteString(strings.Join(Header, ","))
	b.WriteByte('\n')

	for i := 0; i < n; i++ {
		attack := i%2 == 1
		srcIP := fmt.Sprintf("192.168.1.%d", rng.Intn(250)+1)
		dstIP := fmt.Sprintf("10.0.0.%d", rng.Intn(250)+1)
		srcPort := 1024 + rng.Intn(60000)

		var row []string
		if attack {
			state := []string{"REJ", "S0", "RSTOS0"}[rng.Intn(3)]
			row = []string{
				srcIP, fmt.Sprint(srcPort), dstIP, fmt.Sprint(rng.Intn(1024)),
				"tcp", "-", fmt.Sprintf("%.4f", rng.Float64()*0.01),
				fmt.Sprint(rng.Intn(40)), "0", state, "0",
				fmt.Sprint(1 + rng.Intn(2)), fmt.Sprint(rng.Intn(2)),
				"-", "0", "0", "0",
				"0", "0", "0",
				"1", []string{"scanning", "ddos"}[rng.Intn(2)],
			}
		} else {
			proto, service, query, qclass, qtype := "tcp", "-", "-", "0", "0"
			status, reqLen, respLen := "0", "0", "0"
			switch rng.Intn(3) {
			case 0:
				service, status = "http", "200"
				reqLen = fmt.Sprint(100 + rng.Intn(400))
				respLen = fmt.Sprint(500 + rng.Intn(3000))
			case 1:
				proto, service, query, qclass, qtype = "udp", "dns", "example.com", "1", "1"
			}
			if rng.Intn(10) == 0 {
				// Missing DNS metadata, as in the raw capture exports.
				query, qclass = "", ""
			}
			row = []string{
				srcIP, fmt.Sprint(srcPort), dstIP, "80",
				proto, service, fmt.Sprintf("%.4f", 0.5+rng.Float64()*4),
				fmt.Sprint(200 + rng.Intn(800)), fmt.Sprint(300 + rng.Intn(2000)), "SF", "0",
				fmt.Sprint(5 + rng.Intn(20)), fmt.Sprint(5 + rng.Intn(20)),
				query, qclass, qtype, "0",
				reqLen, respLen, status,
				"0", "normal",
			}
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteDataset writes SyntheticCSV to path.
func WriteDataset(path string, n int, seed int64) error {
	return os.WriteFile(path, []byte(SyntheticCSV(n, seed)), 0644)
}
