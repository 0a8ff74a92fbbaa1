package otaxml

import (
	"encoding/xml"
	"fmt"
	"time"

	"meridian/internal/shared/htngerr"
)

const (
	maxBlockCodeLen = 20
	maxBlockNameLen = 100
	minBlockRooms   = 1
	maxBlockRooms   = 1000
	minCutoffDays   = 0
	maxCutoffDays   = 365
)

// GroupBlock is the DTO for one OTA_HotelInvBlockNotifRQ payload.
type GroupBlock struct {
	HotelCode    string
	BlockCode    string
	BlockName    string
	RoomTypeCode string
	RoomCount    int
	PickupStatus int
	CutoffDays   int
	Start        time.Time
	End          time.Time
	Extensions   []RawExtension
}

func (b GroupBlock) validate(now time.Time) *htngerr.Error {
	if b.BlockCode == "" || len(b.BlockCode) > maxBlockCodeLen {
		return htngerr.Validation(fmt.Sprintf("block code must be 1..%d characters", maxBlockCodeLen))
	}
	if len(b.BlockName) > maxBlockNameLen {
		return htngerr.Validation(fmt.Sprintf("block name exceeds %d characters", maxBlockNameLen))
	}
	if b.RoomCount < minBlockRooms || b.RoomCount > maxBlockRooms {
		return htngerr.Validation(fmt.Sprintf("room count %d out of range [%d, %d]", b.RoomCount, minBlockRooms, maxBlockRooms))
	}
	switch b.PickupStatus {
	case 1, 2, 3:
	default:
		return htngerr.Validation(fmt.Sprintf("pickup status %d not in {1, 2, 3}", b.PickupStatus))
	}
	if b.CutoffDays < minCutoffDays || b.CutoffDays > maxCutoffDays {
		return htngerr.Validation(fmt.Sprintf("cutoff %d days out of range [%d, %d]", b.CutoffDays, minCutoffDays, maxCutoffDays))
	}
	return validateDateRange(b.Start, b.End, now)
}

type invBlockNotifRQ struct {
	XMLName   xml.Name      `xml:"OTA_HotelInvBlockNotifRQ"`
	Xmlns     string        `xml:"xmlns,attr"`
	EchoToken string        `xml:"EchoToken,attr"`
	TimeStamp string        `xml:"TimeStamp,attr"`
	Version   string        `xml:"Version,attr"`
	Blocks    invBlockGroup `xml:"InvBlocks"`
}

type invBlockGroup struct {
	HotelCode string     `xml:"HotelCode,attr"`
	Items     []invBlock `xml:"InvBlock"`
}

type invBlock struct {
	InvBlockCode string        `xml:"InvBlockCode,attr"`
	PickupStatus int           `xml:"InvBlockStatusCode,attr"`
	Dates        invBlockDates `xml:"InvBlockDates"`
	Description  invBlockDesc  `xml:"BlockDescriptions>BlockDescription"`
	RoomType     invBlockRoom  `xml:"RoomTypes>RoomType"`
}

type invBlockDates struct {
	Start          string `xml:"Start,attr"`
	End            string `xml:"End,attr"`
	AbsoluteCutoff string `xml:"AbsoluteCutoff,attr"`
}

type invBlockDesc struct {
	Name string `xml:"Name,attr"`
}

type invBlockRoom struct {
	RoomTypeCode  string `xml:"RoomTypeCode,attr"`
	NumberOfUnits int    `xml:"NumberOfUnits,attr"`
}

// BuildGroupBlock validates the DTO and emits the payload XML. The cutoff is
// serialized as an absolute date counted back from arrival.
func BuildGroupBlock(block GroupBlock, hdr HeaderContext) ([]byte, *htngerr.Error) {
	if err := block.validate(hdr.Timestamp); err != nil {
		return nil, err
	}
	cutoff := block.Start.AddDate(0, 0, -block.CutoffDays)
	doc := invBlockNotifRQ{
		Xmlns:     nsOTA,
		EchoToken: hdr.echoToken(),
		TimeStamp: hdr.timestamp(),
		Version:   "1.0",
		Blocks: invBlockGroup{
			HotelCode: block.HotelCode,
			Items: []invBlock{{
				InvBlockCode: block.BlockCode,
				PickupStatus: block.PickupStatus,
				Dates: invBlockDates{
					Start:          formatDate(block.Start),
					End:            formatDate(block.End),
					AbsoluteCutoff: formatDate(cutoff),
				},
				Description: invBlockDesc{Name: block.BlockName},
				RoomType: invBlockRoom{
					RoomTypeCode:  block.RoomTypeCode,
					NumberOfUnits: block.RoomCount,
				},
			}},
		},
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "marshal group block payload", err)
	}
	return out, nil
}

type invBlockNotifParsed struct {
	XMLName   xml.Name `xml:"http://www.opentravel.org/OTA/2003/05 OTA_HotelInvBlockNotifRQ"`
	EchoToken string   `xml:"EchoToken,attr"`
	Blocks    struct {
		HotelCode string `xml:"HotelCode,attr"`
		Items     []struct {
			InvBlockCode string `xml:"InvBlockCode,attr"`
			PickupStatus int    `xml:"InvBlockStatusCode,attr"`
			Dates        struct {
				Start          string `xml:"Start,attr"`
				End            string `xml:"End,attr"`
				AbsoluteCutoff string `xml:"AbsoluteCutoff,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 InvBlockDates"`
			Description struct {
				Name string `xml:"Name,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 BlockDescriptions>BlockDescription"`
			RoomType struct {
				RoomTypeCode  string `xml:"RoomTypeCode,attr"`
				NumberOfUnits int    `xml:"NumberOfUnits,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 RoomTypes>RoomType"`
		} `xml:"http://www.opentravel.org/OTA/2003/05 InvBlock"`
	} `xml:"http://www.opentravel.org/OTA/2003/05 InvBlocks"`
	Extensions []RawExtension `xml:",any"`
}

// ParseGroupBlock decodes a group block payload. Only the first block of the
// envelope is returned; the engine sends one block per envelope.
func ParseGroupBlock(payload []byte) (GroupBlock, *htngerr.Error) {
	var doc invBlockNotifParsed
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return GroupBlock{}, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "parse group block payload", err)
	}
	if len(doc.Blocks.Items) == 0 {
		return GroupBlock{}, htngerr.Validation("group block payload carries no InvBlock")
	}
	item := doc.Blocks.Items[0]
	start, err := parseDate(item.Dates.Start)
	if err != nil {
		return GroupBlock{}, htngerr.Validation("invalid block start date: " + item.Dates.Start)
	}
	end, err := parseDate(item.Dates.End)
	if err != nil {
		return GroupBlock{}, htngerr.Validation("invalid block end date: " + item.Dates.End)
	}
	block := GroupBlock{
		HotelCode:    doc.Blocks.HotelCode,
		BlockCode:    item.InvBlockCode,
		BlockName:    item.Description.Name,
		RoomTypeCode: item.RoomType.RoomTypeCode,
		RoomCount:    item.RoomType.NumberOfUnits,
		PickupStatus: item.PickupStatus,
		Start:        start,
		End:          end,
	}
	for _, ext := range doc.Extensions {
		if ext.XMLName.Space != nsOTA {
			block.Extensions = append(block.Extensions, ext)
		}
	}
	if item.Dates.AbsoluteCutoff != "" {
		cutoff, err := parseDate(item.Dates.AbsoluteCutoff)
		if err != nil {
			return GroupBlock{}, htngerr.Validation("invalid block cutoff date: " + item.Dates.AbsoluteCutoff)
		}
		block.CutoffDays = int(start.Sub(cutoff).Hours() / 24)
	}
	return block, nil
}
