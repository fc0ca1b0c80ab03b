package collector

import (
	"fmt"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
)

// firmwareAnswer marks a rule reading the firmware version instead of an
// endpoint answer.
const firmwareAnswer = "firmware"

// rule copies answer[raw] into the output field.
type rule struct {
	field  string
	answer string
	raw    string
}

var rules = map[Group][]rule{
	GroupDevice: {
		{"model", answerDeviceInfo, "NewModelName"},
		{"firmware", firmwareAnswer, ""},
		{"update_available", answerUserInterface, "NewUpgradeAvailable"},
		{"uptime", answerDeviceInfo, "NewUpTime"},
	},
	GroupConnection: {
		{"connection_time", answerConnectionInfo, "NewUptime"},
		{"connection_status", answerConnectionInfo, "NewConnectionStatus"},
		{"connection_last_error", answerConnectionInfo, "NewLastConnectionError"},
		{"connection_type", answerWANInfo, "NewWANAccessType"},
		{"physical_link", answerWANInfo, "NewPhysicalLinkStatus"},
		{"external_IP", answerConnectionInfo, "NewExternalIPAddress"},
		{"bitrate_down_max", answerWANInfo, "NewLayer1DownstreamMaxBitRate"},
		{"bitrate_up_max", answerWANInfo, "NewLayer1UpstreamMaxBitRate"},
		{"dsl_rate_down", answerDSLInfo, "NewDownstreamCurrRate"},
		{"dsl_rate_up", answerDSLInfo, "NewUpstreamCurrRate"},
		{"dsl_rate_down_max", answerDSLInfo, "NewDownstreamMaxRate"},
		{"dsl_rate_up_max", answerDSLInfo, "NewUpstreamMaxRate"},
		{"noise_down", answerDSLInfo, "NewDownstreamNoiseMargin"},
		{"noise_up", answerDSLInfo, "NewUpstreamNoiseMargin"},
		{"power_down", answerDSLInfo, "NewDownstreamPower"},
		{"power_up", answerDSLInfo, "NewUpstreamPower"},
		{"attenuation_down", answerDSLInfo, "NewDownstreamAttenuation"},
		{"attenuation_up", answerDSLInfo, "NewUpstreamAttenuation"},
		{"error_fec", answerDSLError, "NewFECErrors"},
		{"error_fec_local", answerDSLError, "NewATUCFECErrors"},
		{"error_crc", answerDSLError, "NewCRCErrors"},
		{"error_crc_local", answerDSLError, "NewATUCCRCErrors"},
		{"error_hec", answerDSLError, "NewHECErrors"},
		{"error_hec_local", answerDSLError, "NewATUCHECErrors"},
	},
	GroupTraffic: {
		{"rate_byte_down", answerTrafficInfo, "NewByteReceiveRate"},
		{"rate_byte_up", answerTrafficInfo, "NewByteSendRate"},
		{"rate_packets_down", answerTrafficInfo, "NewPacketReceiveRate"},
		{"rate_packets_up", answerTrafficInfo, "NewPacketSendRate"},
		{"bytes_down_total", answerTrafficInfo, "NewTotalBytesReceived"},
		{"bytes_up_total", answerTrafficInfo, "NewTotalBytesSent"},
		{"bytes_down_total64", answerTrafficInfo, "NewX_AVM_DE_TotalBytesReceived64"},
		{"bytes_up_total64", answerTrafficInfo, "NewX_AVM_DE_TotalBytesSent64"},
		{"dns_server1", answerTrafficInfo, "NewDNSServer1"},
		{"dns_server2", answerTrafficInfo, "NewDNSServer2"},
	},
	GroupNetwork: networkRules(),
}

func networkRules() []rule {
	out := []rule{
		{"hosts_known", answerDHCPInfo, "NewHostNumberOfEntries"},
		{"lan_packets_up", answerLANStat, "NewPacketsSent"},
		{"lan_packets_down", answerLANStat, "NewPacketsReceived"},
	}
	out = append(out, wlanRules("24", answerWLANInfo24, answerWLANAssoc24, answerWLANStat24)...)
	out = append(out, wlanRules("50", answerWLANInfo50, answerWLANAssoc50, answerWLANStat50)...)
	out = append(out, wlanRules("guest", answerWLANInfoGuest, answerWLANAssocGuest, answerWLANStatGuest)...)
	return out
}

func wlanRules(band, info, assoc, stat string) []rule {
	prefix := "wlan_" + band + "_"
	return []rule{
		{prefix + "name", info, "NewSSID"},
		{prefix + "channel", info, "NewChannel"},
		{prefix + "clients", assoc, "NewTotalAssociations"},
		{prefix + "packets_up", stat, "NewTotalPacketsSent"},
		{prefix + "packets_down", stat, "NewTotalPacketsReceived"},
	}
}

// FieldNames returns the output field names of a group in rule order.
func FieldNames(group Group) []string {
	names := make([]string, 0, len(rules[group]))
	for _, r := range rules[group] {
		names = append(names, r.field)
	}
	return names
}

// tryBuild assembles one group. Any missing value fails the whole group;
// a partially populated group is never returned.
func tryBuild(group Group, ds *Dataset) (Fields, error) {
	errFactory := errors.New()

	groupRules, ok := rules[group]
	if !ok {
		return nil, errFactory.WithMessage(ErrSelectionFailed, fmt.Sprintf("unknown group %q", group))
	}

	fields := make(Fields, len(groupRules))
	for _, r := range groupRules {
		if r.answer == firmwareAnswer {
			if ds.FirmwareErr != nil {
				return nil, selectionError(group, r, ds.FirmwareErr)
			}
			fields[r.field] = ds.Firmware
			continue
		}

		value, ok := ds.Answers[r.answer][r.raw]
		if !ok {
			return nil, selectionError(group, r, nil)
		}
		fields[r.field] = value
	}

	return fields, nil
}

func selectionError(group Group, r rule, cause error) errors.Error {
	errFactory := errors.New()
	data := missingField{Group: group, Answer: r.answer, Field: r.raw}

	if cause != nil {
		return errFactory.Wrap(ErrSelectionFailed, cause).WithData(data)
	}
	return errFactory.WithData(ErrSelectionFailed, data)
}
