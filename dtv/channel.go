/*
NAME
  channel.go

DESCRIPTION
  channel.go provides explicit transport descriptions with their expected
  channels, and IPTV channel tuning.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dtv

// ChannelInfo is a channel expected on a transport, e.g. from a channels.conf
// style listing.
type ChannelInfo struct {
	Name      string `yaml:"name"`
	ServiceID uint16 `yaml:"serviceid"`
}

// Transport is an explicitly listed transport and the channels it should
// carry.
type Transport struct {
	Multiplex `yaml:",inline"`
	Channels  []ChannelInfo `yaml:"channels,omitempty"`
}

// IPTVTuning locates an IPTV stream.
type IPTVTuning struct {
	DataURL string `yaml:"url"`
	Bitrate uint64 `yaml:"bitrate,omitempty"`
}

// IPTVChannel is one channel of an IPTV channel map. Maps of IPTVChannel are
// keyed by channel number.
type IPTVChannel struct {
	Name          string
	ProgramNumber uint16
	Tuning        IPTVTuning
}
