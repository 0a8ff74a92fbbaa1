package otaxml

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"meridian/internal/shared/htngerr"
)

// CountType values from the OTA inventory count vocabulary. The channel
// either receives a direct available count (type 2, not-calculated mode) or
// derives availability itself from the calculated-mode counts.
type CountType int

const (
	CountPhysical       CountType = 1
	CountAvailable      CountType = 2
	CountDefiniteSold   CountType = 4
	CountTentativeSold  CountType = 5
	CountOutOfOrder     CountType = 6
	CountOverbooking    CountType = 99
)

const (
	minCountValue = 0
	maxCountValue = 9999
)

type InventoryCount struct {
	Type  CountType
	Value int
}

// InventoryRecord covers one date window. RoomTypeCode empty means a
// property-level record.
type InventoryRecord struct {
	RoomTypeCode string
	Start        time.Time
	End          time.Time
	Counts       []InventoryCount
}

// InventoryMessage is the DTO for one OTA_HotelInvCountNotifRQ payload.
type InventoryMessage struct {
	HotelCode  string
	Calculated bool
	Records    []InventoryRecord
	Extensions []RawExtension
}

func (m InventoryMessage) validate(now time.Time) *htngerr.Error {
	if len(m.Records) == 0 {
		return htngerr.Validation("inventory message requires at least one record")
	}
	for i, rec := range m.Records {
		if err := validateDateRange(rec.Start, rec.End, now); err != nil {
			return err
		}
		if len(rec.Counts) == 0 {
			return htngerr.Validation(fmt.Sprintf("inventory record %d has no counts", i))
		}
		seen := map[CountType]bool{}
		for _, c := range rec.Counts {
			if c.Value < minCountValue || c.Value > maxCountValue {
				return htngerr.Validation(fmt.Sprintf("inventory count %d out of range [%d, %d]", c.Value, minCountValue, maxCountValue))
			}
			if seen[c.Type] {
				return htngerr.Validation(fmt.Sprintf("duplicate count type %d in record %d", c.Type, i))
			}
			seen[c.Type] = true
		}
		if m.Calculated {
			if seen[CountAvailable] {
				return htngerr.Validation("calculated inventory forbids count type 2")
			}
			if !seen[CountDefiniteSold] || !seen[CountTentativeSold] {
				return htngerr.Validation("calculated inventory requires count types 4 and 5 together")
			}
			for t := range seen {
				switch t {
				case CountPhysical, CountDefiniteSold, CountTentativeSold, CountOutOfOrder, CountOverbooking:
				default:
					return htngerr.Validation(fmt.Sprintf("count type %d not permitted in calculated inventory", t))
				}
			}
		} else {
			if !seen[CountAvailable] {
				return htngerr.Validation("not-calculated inventory requires count type 2")
			}
			if len(seen) != 1 {
				return htngerr.Validation("not-calculated inventory permits only count type 2")
			}
		}
	}
	return nil
}

type invCountNotifRQ struct {
	XMLName     xml.Name       `xml:"OTA_HotelInvCountNotifRQ"`
	Xmlns       string         `xml:"xmlns,attr"`
	EchoToken   string         `xml:"EchoToken,attr"`
	TimeStamp   string         `xml:"TimeStamp,attr"`
	Version     string         `xml:"Version,attr"`
	Inventories invInventories `xml:"Inventories"`
}

type invInventories struct {
	HotelCode string         `xml:"HotelCode,attr"`
	Items     []invInventory `xml:"Inventory"`
}

type invInventory struct {
	Control  invControl  `xml:"StatusApplicationControl"`
	Counts   []invCount  `xml:"InvCounts>InvCount"`
}

type invControl struct {
	Start       string `xml:"Start,attr"`
	End         string `xml:"End,attr"`
	InvTypeCode string `xml:"InvTypeCode,attr,omitempty"`
	AllInvCode  string `xml:"AllInvCode,attr,omitempty"`
}

type invCount struct {
	CountType int `xml:"CountType,attr"`
	Count     int `xml:"Count,attr"`
}

// BuildInventory validates the DTO and emits the payload XML.
func BuildInventory(msg InventoryMessage, hdr HeaderContext) ([]byte, *htngerr.Error) {
	if err := msg.validate(hdr.Timestamp); err != nil {
		return nil, err
	}
	doc := invCountNotifRQ{
		Xmlns:     nsOTA,
		EchoToken: hdr.echoToken(),
		TimeStamp: hdr.timestamp(),
		Version:   "1.0",
		Inventories: invInventories{
			HotelCode: msg.HotelCode,
		},
	}
	for _, rec := range msg.Records {
		item := invInventory{
			Control: invControl{
				Start:       formatDate(rec.Start),
				End:         formatDate(rec.End),
				InvTypeCode: rec.RoomTypeCode,
			},
		}
		if rec.RoomTypeCode == "" {
			item.Control.AllInvCode = "true"
		}
		counts := append([]InventoryCount(nil), rec.Counts...)
		sort.Slice(counts, func(i, j int) bool { return counts[i].Type < counts[j].Type })
		for _, c := range counts {
			item.Counts = append(item.Counts, invCount{CountType: int(c.Type), Count: c.Value})
		}
		doc.Inventories.Items = append(doc.Inventories.Items, item)
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "marshal inventory payload", err)
	}
	return out, nil
}

type invCountNotifParsed struct {
	XMLName     xml.Name `xml:"http://www.opentravel.org/OTA/2003/05 OTA_HotelInvCountNotifRQ"`
	EchoToken   string   `xml:"EchoToken,attr"`
	Inventories struct {
		HotelCode string `xml:"HotelCode,attr"`
		Items     []struct {
			Control struct {
				Start       string `xml:"Start,attr"`
				End         string `xml:"End,attr"`
				InvTypeCode string `xml:"InvTypeCode,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 StatusApplicationControl"`
			Counts []struct {
				CountType int `xml:"CountType,attr"`
				Count     int `xml:"Count,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 InvCounts>InvCount"`
		} `xml:"http://www.opentravel.org/OTA/2003/05 Inventory"`
	} `xml:"http://www.opentravel.org/OTA/2003/05 Inventories"`
	Extensions []RawExtension `xml:",any"`
}

// ParseInventory decodes an inventory payload. Calculated mode is inferred
// from the count types present.
func ParseInventory(payload []byte) (InventoryMessage, *htngerr.Error) {
	var doc invCountNotifParsed
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return InventoryMessage{}, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "parse inventory payload", err)
	}
	msg := InventoryMessage{HotelCode: doc.Inventories.HotelCode}
	for _, ext := range doc.Extensions {
		if ext.XMLName.Space != nsOTA {
			msg.Extensions = append(msg.Extensions, ext)
		}
	}
	for _, item := range doc.Inventories.Items {
		start, err := parseDate(item.Control.Start)
		if err != nil {
			return InventoryMessage{}, htngerr.Validation("invalid inventory start date: " + item.Control.Start)
		}
		end, err := parseDate(item.Control.End)
		if err != nil {
			return InventoryMessage{}, htngerr.Validation("invalid inventory end date: " + item.Control.End)
		}
		rec := InventoryRecord{
			RoomTypeCode: item.Control.InvTypeCode,
			Start:        start,
			End:          end,
		}
		for _, c := range item.Counts {
			rec.Counts = append(rec.Counts, InventoryCount{Type: CountType(c.CountType), Value: c.Count})
			if CountType(c.CountType) == CountDefiniteSold || CountType(c.CountType) == CountTentativeSold {
				msg.Calculated = true
			}
		}
		msg.Records = append(msg.Records, rec)
	}
	return msg, nil
}
