package emv

import (
	"cmp"
	"slices"

	"github.com/gregLibert/ccid-emv/pkg/ber"
)

// DataType is the value format of an EMV data element.
type DataType int

const (
	Binary DataType = iota
	Text
	Int
	BCD
	Date
)

func (t DataType) String() string {
	switch t {
	case Text:
		return "text"
	case Int:
		return "int"
	case BCD:
		return "bcd"
	case Date:
		return "date"
	default:
		return "binary"
	}
}

// TagInfo is the immutable metadata shared by every element of a tag.
type TagInfo struct {
	Tag  ber.Tag
	Type DataType
	// DOL marks elements holding a data object list.
	DOL   bool
	Min   int
	Max   int
	Label string
}

// EMV data object tags.
const (
	TagAppTemplate         ber.Tag = 0x61
	TagFCITemplate         ber.Tag = 0x6F
	TagRecordTemplate      ber.Tag = 0x70
	TagDirDiscretionary    ber.Tag = 0x73
	TagResponseFormat2     ber.Tag = 0x77
	TagResponseFormat1     ber.Tag = 0x80
	TagFCIProprietary      ber.Tag = 0xA5
	TagFCIDiscretionary    ber.Tag = 0xBF0C
	TagIIN                 ber.Tag = 0x42
	TagAID                 ber.Tag = 0x4F
	TagAppLabel            ber.Tag = 0x50
	TagTrack2              ber.Tag = 0x57
	TagPAN                 ber.Tag = 0x5A
	TagCardholderName      ber.Tag = 0x5F20
	TagExpiryDate          ber.Tag = 0x5F24
	TagEffectiveDate       ber.Tag = 0x5F25
	TagIssuerCountry       ber.Tag = 0x5F28
	TagCurrencyCode        ber.Tag = 0x5F2A
	TagLanguagePreference  ber.Tag = 0x5F2D
	TagServiceCode         ber.Tag = 0x5F30
	TagPANSequence         ber.Tag = 0x5F34
	TagAIP                 ber.Tag = 0x82
	TagCommandTemplate     ber.Tag = 0x83
	TagDFName              ber.Tag = 0x84
	TagAppPriority         ber.Tag = 0x87
	TagSFI                 ber.Tag = 0x88
	TagCDOL1               ber.Tag = 0x8C
	TagCDOL2               ber.Tag = 0x8D
	TagCVMList             ber.Tag = 0x8E
	TagCAKeyIndex          ber.Tag = 0x8F
	TagIssuerCert          ber.Tag = 0x90
	TagIssuerRemainder     ber.Tag = 0x92
	TagSignedStaticData    ber.Tag = 0x93
	TagAFL                 ber.Tag = 0x94
	TagTVR                 ber.Tag = 0x95
	TagTransactionDate     ber.Tag = 0x9A
	TagTransactionType     ber.Tag = 0x9C
	TagDDFName             ber.Tag = 0x9D
	TagAmountAuthorised    ber.Tag = 0x9F02
	TagAmountOther         ber.Tag = 0x9F03
	TagAUC                 ber.Tag = 0x9F07
	TagAppVersion          ber.Tag = 0x9F08
	TagIACDefault          ber.Tag = 0x9F0D
	TagIACDenial           ber.Tag = 0x9F0E
	TagIACOnline           ber.Tag = 0x9F0F
	TagIAD                 ber.Tag = 0x9F10
	TagIssuerCodeTable     ber.Tag = 0x9F11
	TagPreferredName       ber.Tag = 0x9F12
	TagLastOnlineATC       ber.Tag = 0x9F13
	TagPINTryCounter       ber.Tag = 0x9F17
	TagTerminalCountry     ber.Tag = 0x9F1A
	TagTrack1Discretionary ber.Tag = 0x9F1F
	TagAC                  ber.Tag = 0x9F26
	TagCID                 ber.Tag = 0x9F27
	TagIssuerExponent      ber.Tag = 0x9F32
	TagCVMResults          ber.Tag = 0x9F34
	TagTerminalType        ber.Tag = 0x9F35
	TagATC                 ber.Tag = 0x9F36
	TagUnpredictableNumber ber.Tag = 0x9F37
	TagPDOL                ber.Tag = 0x9F38
	TagAppCurrency         ber.Tag = 0x9F42
	TagAppCurrencyExponent ber.Tag = 0x9F44
	TagICCCert             ber.Tag = 0x9F46
	TagICCExponent         ber.Tag = 0x9F47
	TagICCRemainder        ber.Tag = 0x9F48
	TagDDOL                ber.Tag = 0x9F49
	TagSDATagList          ber.Tag = 0x9F4A
	TagDynamicData         ber.Tag = 0x9F4B
	TagLogEntry            ber.Tag = 0x9F4D
)

var tagInfos = sortedInfos([]TagInfo{
	{Tag: TagAppTemplate, Label: "Application Template"},
	{Tag: TagFCITemplate, Label: "FCI Template"},
	{Tag: TagRecordTemplate, Label: "Record Template"},
	{Tag: TagDirDiscretionary, Label: "Directory Discretionary Template"},
	{Tag: TagResponseFormat2, Label: "Response Message Template Format 2"},
	{Tag: TagResponseFormat1, Label: "Response Message Template Format 1"},
	{Tag: TagFCIProprietary, Label: "FCI Proprietary Template"},
	{Tag: TagFCIDiscretionary, Label: "FCI Issuer Discretionary Data"},
	{Tag: TagIIN, Type: BCD, Min: 3, Max: 3, Label: "Issuer Identification Number"},
	{Tag: TagAID, Min: 5, Max: 16, Label: "Application Identifier (card)"},
	{Tag: TagAppLabel, Type: Text, Min: 1, Max: 16, Label: "Application Label"},
	{Tag: TagTrack2, Max: 19, Label: "Track 2 Equivalent Data"},
	{Tag: TagPAN, Type: BCD, Max: 10, Label: "Application PAN"},
	{Tag: TagCardholderName, Type: Text, Min: 2, Max: 26, Label: "Cardholder Name"},
	{Tag: TagExpiryDate, Type: Date, Min: 3, Max: 3, Label: "Application Expiration Date"},
	{Tag: TagEffectiveDate, Type: Date, Min: 3, Max: 3, Label: "Application Effective Date"},
	{Tag: TagIssuerCountry, Type: BCD, Min: 2, Max: 2, Label: "Issuer Country Code"},
	{Tag: TagCurrencyCode, Type: BCD, Min: 2, Max: 2, Label: "Transaction Currency Code"},
	{Tag: TagLanguagePreference, Type: Text, Min: 2, Max: 8, Label: "Language Preference"},
	{Tag: TagServiceCode, Type: BCD, Min: 2, Max: 2, Label: "Service Code"},
	{Tag: TagPANSequence, Type: BCD, Min: 1, Max: 1, Label: "PAN Sequence Number"},
	{Tag: TagAIP, Min: 2, Max: 2, Label: "Application Interchange Profile"},
	{Tag: TagCommandTemplate, Label: "Command Template"},
	{Tag: TagDFName, Min: 5, Max: 16, Label: "Dedicated File Name"},
	{Tag: TagAppPriority, Min: 1, Max: 1, Label: "Application Priority Indicator"},
	{Tag: TagSFI, Type: Int, Min: 1, Max: 1, Label: "Short File Identifier"},
	{Tag: TagCDOL1, DOL: true, Max: 252, Label: "CDOL1"},
	{Tag: TagCDOL2, DOL: true, Max: 252, Label: "CDOL2"},
	{Tag: TagCVMList, Min: 10, Max: 252, Label: "CVM List"},
	{Tag: TagCAKeyIndex, Min: 1, Max: 1, Label: "CA Public Key Index"},
	{Tag: TagIssuerCert, Label: "Issuer Public Key Certificate"},
	{Tag: TagIssuerRemainder, Label: "Issuer Public Key Remainder"},
	{Tag: TagSignedStaticData, Label: "Signed Static Application Data"},
	{Tag: TagAFL, Max: 252, Label: "Application File Locator"},
	{Tag: TagTVR, Min: 5, Max: 5, Label: "Terminal Verification Results"},
	{Tag: TagTransactionDate, Type: Date, Min: 3, Max: 3, Label: "Transaction Date"},
	{Tag: TagTransactionType, Type: BCD, Min: 1, Max: 1, Label: "Transaction Type"},
	{Tag: TagDDFName, Min: 5, Max: 16, Label: "DDF Name"},
	{Tag: TagAmountAuthorised, Type: BCD, Min: 6, Max: 6, Label: "Amount, Authorised"},
	{Tag: TagAmountOther, Type: BCD, Min: 6, Max: 6, Label: "Amount, Other"},
	{Tag: TagAUC, Min: 2, Max: 2, Label: "Application Usage Control"},
	{Tag: TagAppVersion, Min: 2, Max: 2, Label: "Application Version Number"},
	{Tag: TagIACDefault, Min: 5, Max: 5, Label: "Issuer Action Code - Default"},
	{Tag: TagIACDenial, Min: 5, Max: 5, Label: "Issuer Action Code - Denial"},
	{Tag: TagIACOnline, Min: 5, Max: 5, Label: "Issuer Action Code - Online"},
	{Tag: TagIAD, Max: 32, Label: "Issuer Application Data"},
	{Tag: TagIssuerCodeTable, Type: Int, Min: 1, Max: 1, Label: "Issuer Code Table Index"},
	{Tag: TagPreferredName, Type: Text, Min: 1, Max: 16, Label: "Application Preferred Name"},
	{Tag: TagLastOnlineATC, Type: Int, Min: 2, Max: 2, Label: "Last Online ATC Register"},
	{Tag: TagPINTryCounter, Type: Int, Min: 1, Max: 1, Label: "PIN Try Counter"},
	{Tag: TagTerminalCountry, Type: BCD, Min: 2, Max: 2, Label: "Terminal Country Code"},
	{Tag: TagTrack1Discretionary, Type: Text, Label: "Track 1 Discretionary Data"},
	{Tag: TagAC, Min: 8, Max: 8, Label: "Application Cryptogram"},
	{Tag: TagCID, Min: 1, Max: 1, Label: "Cryptogram Information Data"},
	{Tag: TagIssuerExponent, Min: 1, Max: 3, Label: "Issuer Public Key Exponent"},
	{Tag: TagCVMResults, Min: 3, Max: 3, Label: "CVM Results"},
	{Tag: TagTerminalType, Type: BCD, Min: 1, Max: 1, Label: "Terminal Type"},
	{Tag: TagATC, Type: Int, Min: 2, Max: 2, Label: "Application Transaction Counter"},
	{Tag: TagUnpredictableNumber, Min: 4, Max: 4, Label: "Unpredictable Number"},
	{Tag: TagPDOL, DOL: true, Label: "PDOL"},
	{Tag: TagAppCurrency, Type: BCD, Min: 2, Max: 2, Label: "Application Currency Code"},
	{Tag: TagAppCurrencyExponent, Type: BCD, Min: 1, Max: 1, Label: "Application Currency Exponent"},
	{Tag: TagICCCert, Label: "ICC Public Key Certificate"},
	{Tag: TagICCExponent, Min: 1, Max: 3, Label: "ICC Public Key Exponent"},
	{Tag: TagICCRemainder, Label: "ICC Public Key Remainder"},
	{Tag: TagDDOL, DOL: true, Max: 252, Label: "DDOL"},
	{Tag: TagSDATagList, Label: "Static Data Authentication Tag List"},
	{Tag: TagDynamicData, Label: "Signed Dynamic Application Data"},
	{Tag: TagLogEntry, Min: 2, Max: 2, Label: "Log Entry"},
})

func sortedInfos(infos []TagInfo) []TagInfo {
	slices.SortFunc(infos, func(a, b TagInfo) int { return cmp.Compare(a.Tag, b.Tag) })
	return infos
}

// LookupTag returns the metadata of tag. Unknown tags get a binary entry
// labelled "Unknown".
func LookupTag(tag ber.Tag) *TagInfo {
	i, ok := slices.BinarySearchFunc(tagInfos, tag, func(ti TagInfo, t ber.Tag) int { return cmp.Compare(ti.Tag, t) })
	if !ok {
		return &TagInfo{Tag: tag, Label: "Unknown"}
	}
	return &tagInfos[i]
}
