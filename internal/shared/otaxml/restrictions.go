package otaxml

import (
	"encoding/xml"
	"fmt"
	"time"

	"meridian/internal/shared/htngerr"
)

// RestrictionType is the closed set of booking restrictions.
type RestrictionType string

const (
	RestrictionOpen   RestrictionType = "open"
	RestrictionCTA    RestrictionType = "cta"
	RestrictionCTD    RestrictionType = "ctd"
	RestrictionMaster RestrictionType = "master"
	RestrictionMinLOS RestrictionType = "min_los"
	RestrictionMaxLOS RestrictionType = "max_los"
)

const (
	minLOSValue = 1
	maxLOSValue = 30
)

type RestrictionRecord struct {
	RoomTypeCode string
	RatePlanCode string
	Start        time.Time
	End          time.Time
	Type         RestrictionType
	LOS          int
}

// RestrictionMessage is the DTO for one OTA_HotelAvailNotifRQ payload.
type RestrictionMessage struct {
	HotelCode  string
	Records    []RestrictionRecord
	Extensions []RawExtension
}

func (m RestrictionMessage) validate(now time.Time) *htngerr.Error {
	if len(m.Records) == 0 {
		return htngerr.Validation("restriction message requires at least one record")
	}
	for i, rec := range m.Records {
		if err := validateDateRange(rec.Start, rec.End, now); err != nil {
			return err
		}
		switch rec.Type {
		case RestrictionOpen, RestrictionCTA, RestrictionCTD, RestrictionMaster:
			if rec.LOS != 0 {
				return htngerr.Validation(fmt.Sprintf("restriction record %d of type %s must not carry a length of stay", i, rec.Type))
			}
		case RestrictionMinLOS, RestrictionMaxLOS:
			if rec.LOS < minLOSValue || rec.LOS > maxLOSValue {
				return htngerr.Validation(fmt.Sprintf("length of stay %d out of range [%d, %d]", rec.LOS, minLOSValue, maxLOSValue))
			}
		default:
			return htngerr.Validation(fmt.Sprintf("unknown restriction type %q", rec.Type))
		}
	}
	return nil
}

type availNotifRQ struct {
	XMLName   xml.Name     `xml:"OTA_HotelAvailNotifRQ"`
	Xmlns     string       `xml:"xmlns,attr"`
	EchoToken string       `xml:"EchoToken,attr"`
	TimeStamp string       `xml:"TimeStamp,attr"`
	Version   string       `xml:"Version,attr"`
	Messages  availSection `xml:"AvailStatusMessages"`
}

type availSection struct {
	HotelCode string        `xml:"HotelCode,attr"`
	Items     []availStatus `xml:"AvailStatusMessage"`
}

type availStatus struct {
	Control     availControl      `xml:"StatusApplicationControl"`
	Restriction *availRestriction `xml:"RestrictionStatus,omitempty"`
	Lengths     []availLOS        `xml:"LengthsOfStay>LengthOfStay,omitempty"`
}

type availControl struct {
	Start        string `xml:"Start,attr"`
	End          string `xml:"End,attr"`
	InvTypeCode  string `xml:"InvTypeCode,attr,omitempty"`
	RatePlanCode string `xml:"RatePlanCode,attr,omitempty"`
}

type availRestriction struct {
	Status      string `xml:"Status,attr"`
	Restriction string `xml:"Restriction,attr,omitempty"`
}

type availLOS struct {
	MinMaxMessageType string `xml:"MinMaxMessageType,attr"`
	Time              int    `xml:"Time,attr"`
}

// BuildRestrictions validates the DTO and emits the payload XML.
func BuildRestrictions(msg RestrictionMessage, hdr HeaderContext) ([]byte, *htngerr.Error) {
	if err := msg.validate(hdr.Timestamp); err != nil {
		return nil, err
	}
	doc := availNotifRQ{
		Xmlns:     nsOTA,
		EchoToken: hdr.echoToken(),
		TimeStamp: hdr.timestamp(),
		Version:   "1.0",
		Messages:  availSection{HotelCode: msg.HotelCode},
	}
	for _, rec := range msg.Records {
		item := availStatus{
			Control: availControl{
				Start:        formatDate(rec.Start),
				End:          formatDate(rec.End),
				InvTypeCode:  rec.RoomTypeCode,
				RatePlanCode: rec.RatePlanCode,
			},
		}
		switch rec.Type {
		case RestrictionOpen:
			item.Restriction = &availRestriction{Status: "Open", Restriction: "Master"}
		case RestrictionMaster:
			item.Restriction = &availRestriction{Status: "Close", Restriction: "Master"}
		case RestrictionCTA:
			item.Restriction = &availRestriction{Status: "Close", Restriction: "Arrival"}
		case RestrictionCTD:
			item.Restriction = &availRestriction{Status: "Close", Restriction: "Departure"}
		case RestrictionMinLOS:
			item.Lengths = []availLOS{{MinMaxMessageType: "SetMinLOS", Time: rec.LOS}}
		case RestrictionMaxLOS:
			item.Lengths = []availLOS{{MinMaxMessageType: "SetMaxLOS", Time: rec.LOS}}
		}
		doc.Messages.Items = append(doc.Messages.Items, item)
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "marshal restriction payload", err)
	}
	return out, nil
}

type availNotifParsed struct {
	XMLName   xml.Name `xml:"http://www.opentravel.org/OTA/2003/05 OTA_HotelAvailNotifRQ"`
	EchoToken string   `xml:"EchoToken,attr"`
	Messages  struct {
		HotelCode string `xml:"HotelCode,attr"`
		Items     []struct {
			Control struct {
				Start        string `xml:"Start,attr"`
				End          string `xml:"End,attr"`
				InvTypeCode  string `xml:"InvTypeCode,attr"`
				RatePlanCode string `xml:"RatePlanCode,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 StatusApplicationControl"`
			Restriction *struct {
				Status      string `xml:"Status,attr"`
				Restriction string `xml:"Restriction,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 RestrictionStatus"`
			Lengths []struct {
				MinMaxMessageType string `xml:"MinMaxMessageType,attr"`
				Time              int    `xml:"Time,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 LengthsOfStay>LengthOfStay"`
		} `xml:"http://www.opentravel.org/OTA/2003/05 AvailStatusMessage"`
	} `xml:"http://www.opentravel.org/OTA/2003/05 AvailStatusMessages"`
	Extensions []RawExtension `xml:",any"`
}

// ParseRestrictions decodes a restriction payload.
func ParseRestrictions(payload []byte) (RestrictionMessage, *htngerr.Error) {
	var doc availNotifParsed
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return RestrictionMessage{}, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "parse restriction payload", err)
	}
	msg := RestrictionMessage{HotelCode: doc.Messages.HotelCode}
	for _, ext := range doc.Extensions {
		if ext.XMLName.Space != nsOTA {
			msg.Extensions = append(msg.Extensions, ext)
		}
	}
	for _, item := range doc.Messages.Items {
		start, err := parseDate(item.Control.Start)
		if err != nil {
			return RestrictionMessage{}, htngerr.Validation("invalid restriction start date: " + item.Control.Start)
		}
		end, err := parseDate(item.Control.End)
		if err != nil {
			return RestrictionMessage{}, htngerr.Validation("invalid restriction end date: " + item.Control.End)
		}
		rec := RestrictionRecord{
			RoomTypeCode: item.Control.InvTypeCode,
			RatePlanCode: item.Control.RatePlanCode,
			Start:        start,
			End:          end,
		}
		switch {
		case len(item.Lengths) > 0:
			los := item.Lengths[0]
			rec.LOS = los.Time
			if los.MinMaxMessageType == "SetMaxLOS" {
				rec.Type = RestrictionMaxLOS
			} else {
				rec.Type = RestrictionMinLOS
			}
		case item.Restriction != nil:
			switch {
			case item.Restriction.Status == "Open":
				rec.Type = RestrictionOpen
			case item.Restriction.Restriction == "Arrival":
				rec.Type = RestrictionCTA
			case item.Restriction.Restriction == "Departure":
				rec.Type = RestrictionCTD
			default:
				rec.Type = RestrictionMaster
			}
		default:
			return RestrictionMessage{}, htngerr.Validation("restriction record carries neither a status nor a length of stay")
		}
		msg.Records = append(msg.Records, rec)
	}
	return msg, nil
}
