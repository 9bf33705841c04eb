package ingest

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Probe row statuses.
const (
	ProbeOK   = "ok"
	ProbeWarn = "warn"
	ProbeFail = "fail"
)

// ProbeCheck is one row of a broker connectivity report.
type ProbeCheck struct {
	Name   string
	Target string
	Status string
	Detail string
}

// ProbeBrokers walks the connectivity ladder against the configured
// brokers: DNS, TCP, a Kafka dial answering ApiVersions, then topic
// visibility read from the first healthy broker. brokers is comma
// separated, as in the config.
func ProbeBrokers(ctx context.Context, brokers string, topics []string, timeout time.Duration) []ProbeCheck {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var checks []ProbeCheck
	var healthy *kafka.Conn

	for _, addr := range strings.Split(brokers, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			checks = append(checks, ProbeCheck{"dns", addr, ProbeFail, "address must be host:port: " + err.Error()})
			continue
		}
		ips, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			checks = append(checks, ProbeCheck{"dns", addr, ProbeFail, err.Error()})
			continue
		}
		checks = append(checks, ProbeCheck{"dns", addr, ProbeOK, fmt.Sprintf("%d address(es)", len(ips))})

		raw, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			checks = append(checks, ProbeCheck{"tcp", addr, ProbeFail, err.Error()})
			continue
		}
		raw.Close()
		checks = append(checks, ProbeCheck{"tcp", addr, ProbeOK, "port open"})

		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		conn, err := (&kafka.Dialer{Timeout: timeout}).DialContext(dialCtx, "tcp", addr)
		cancel()
		if err != nil {
			checks = append(checks, ProbeCheck{"kafka", addr, ProbeFail, "dial: " + err.Error()})
			continue
		}
		if _, err := conn.ApiVersions(); err != nil {
			checks = append(checks, ProbeCheck{"kafka", addr, ProbeFail, "ApiVersions: " + err.Error()})
			conn.Close()
			continue
		}
		checks = append(checks, ProbeCheck{"kafka", addr, ProbeOK, "ApiVersions answered"})
		if healthy == nil {
			healthy = conn
		} else {
			conn.Close()
		}
	}

	if healthy == nil {
		checks = append(checks, ProbeCheck{"topics", brokers, ProbeFail, "no reachable broker to read metadata from"})
		return checks
	}
	defer healthy.Close()

	healthy.SetDeadline(time.Now().Add(timeout))
	parts, err := healthy.ReadPartitions()
	if err != nil {
		checks = append(checks, ProbeCheck{"topics", brokers, ProbeFail, "ReadPartitions: " + err.Error()})
		return checks
	}
	return append(checks, summarizeTopics(parts, topics)...)
}

// summarizeTopics reports visibility and leader coverage per topic.
func summarizeTopics(parts []kafka.Partition, topics []string) []ProbeCheck {
	var checks []ProbeCheck
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		var total, leaders int
		for _, p := range parts {
			if p.Topic != topic {
				continue
			}
			total++
			if p.Leader.Host != "" {
				leaders++
			}
		}
		switch {
		case total == 0:
			checks = append(checks, ProbeCheck{"topic", topic, ProbeFail, "not found or not authorized"})
		case leaders < total:
			checks = append(checks, ProbeCheck{"topic", topic, ProbeWarn, fmt.Sprintf("%d/%d partitions have a leader", leaders, total)})
		default:
			checks = append(checks, ProbeCheck{"topic", topic, ProbeOK, fmt.Sprintf("%d partition(s), all led", total)})
		}
	}
	return checks
}
